package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"calassist/internal/calcom"
)

const (
	historyLimit    = 20
	maxAmbiguous    = 2
	confirmSuffix   = " — confirm?"
	helpText        = "I can list your event types, check availability, book, list, cancel or reschedule bookings, and create event types. Try \"Book a 30-minute meeting tomorrow at 10am with Ana, ana@example.com\"."
	emptyPromptText = "I didn't catch that. What would you like to schedule?"
)

// Gateway is the subset of the scheduling client the dispatcher drives.
type Gateway interface {
	ListEventTypes(ctx context.Context) ([]calcom.EventType, error)
	ListAvailability(ctx context.Context, q calcom.AvailabilityQuery) ([]calcom.Slot, error)
	CreateBooking(ctx context.Context, req calcom.BookingRequest) (*calcom.Booking, error)
	ListBookings(ctx context.Context, filter calcom.BookingFilter) ([]calcom.Booking, error)
	GetBooking(ctx context.Context, id int) (*calcom.Booking, error)
	CancelBooking(ctx context.Context, id int, reason string) (*calcom.CancelResult, error)
	RescheduleBooking(ctx context.Context, req calcom.RescheduleRequest) (*calcom.Booking, error)
	CreateEventType(ctx context.Context, req calcom.EventTypeRequest) (*calcom.EventType, error)
}

// Observer receives one callback per turn and per confirmation reply.
type Observer interface {
	ObserveTurn(state string)
	ObserveConfirmation(decision string)
}

// Reply is the outcome of one turn.
type Reply struct {
	Text      string    `json:"text"`
	State     State     `json:"state"`
	Operation Operation `json:"operation,omitempty"`
	// Executed is true when a gateway operation ran this turn.
	Executed bool `json:"executed"`
	// ErrorKind is set when the turn ended in a gateway error.
	ErrorKind calcom.Kind `json:"errorKind,omitempty"`
	Missing   []string    `json:"missing,omitempty"`
}

// Dispatcher routes utterances to gateway operations, asking for missing
// details and for confirmation before anything with side effects. It keeps
// no per-conversation state and can be shared.
type Dispatcher struct {
	gw         Gateway
	classifier Classifier
	loc        *time.Location
	now        func() time.Time
	format     Formatter
	logger     *zap.Logger
	observer   Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLocation sets the timezone used to read and render times.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) { d.loc = loc }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// New creates a Dispatcher.
func New(gw Gateway, classifier Classifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gw:         gw,
		classifier: classifier,
		loc:        time.UTC,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.format = Formatter{Location: d.loc, Now: d.now}
	return d
}

// Formatter returns the formatter the dispatcher renders with.
func (d *Dispatcher) Formatter() Formatter {
	return d.format
}

// Handle processes one utterance to completion, including at most one
// mutating gateway call.
func (d *Dispatcher) Handle(ctx context.Context, conv *Conversation, utterance string) Reply {
	utterance = strings.TrimSpace(utterance)
	conv.append(RoleUser, utterance, d.now())

	var r Reply
	switch {
	case utterance == "" && conv.State() != StateAwaitingConfirmation:
		r = Reply{Text: emptyPromptText}
	case conv.State() == StateAwaitingConfirmation:
		r = d.confirm(ctx, conv, utterance)
	case conv.State() == StateAwaitingClarification:
		r = d.clarify(ctx, conv, utterance)
	default:
		r = d.idle(ctx, conv, utterance)
	}

	r.State = conv.State()
	conv.append(RoleAssistant, r.Text, d.now())
	if d.observer != nil {
		d.observer.ObserveTurn(string(r.State))
	}
	d.logger.Debug("turn handled",
		zap.String("conversation", conv.ID),
		zap.String("state", string(r.State)),
		zap.String("operation", string(r.Operation)),
		zap.Bool("executed", r.Executed))
	return r
}

func (d *Dispatcher) idle(ctx context.Context, conv *Conversation, utterance string) Reply {
	intent, err := d.classify(ctx, conv, utterance, "")
	if err != nil {
		return d.classifierFailed(conv, err)
	}
	return d.route(ctx, conv, intent)
}

// route starts a fresh request from a classified intent.
func (d *Dispatcher) route(ctx context.Context, conv *Conversation, intent Intent) Reply {
	conv.Reset()
	if !intent.Operation.Valid() {
		text := strings.TrimSpace(intent.Reply)
		if text == "" {
			text = helpText
		}
		return Reply{Text: text, Operation: OpNone}
	}
	return d.advance(ctx, conv, &Draft{Operation: intent.Operation, Params: intent.Params})
}

// advance validates draft and either asks for what is missing, asks for
// confirmation, or runs a read right away.
func (d *Dispatcher) advance(ctx context.Context, conv *Conversation, draft *Draft) Reply {
	act, probs, err := d.complete(ctx, draft)
	if err != nil {
		conv.Reset()
		return d.failure(draft.Operation, draft.Params.BookingID, err)
	}
	if len(probs) > 0 {
		draft.Missing = fields(probs)
		conv.setDraft(draft)
		return Reply{Text: question(draft.Operation, probs), Operation: draft.Operation, Missing: draft.Missing}
	}
	if !draft.Operation.Mutating() {
		conv.Reset()
		return d.execute(ctx, act)
	}
	summary := act.summary(d.format)
	conv.setPending(&PendingAction{Operation: draft.Operation, Summary: summary, action: act})
	return Reply{Text: summary + confirmSuffix, Operation: draft.Operation}
}

func (d *Dispatcher) clarify(ctx context.Context, conv *Conversation, utterance string) Reply {
	draft := conv.draft
	if isAbandon(utterance) {
		conv.Reset()
		return Reply{Text: "OK, I dropped that request.", Operation: draft.Operation}
	}

	intent, err := d.classify(ctx, conv, utterance, draft.Operation)
	if err != nil {
		return d.classifierFailed(conv, err)
	}
	switch {
	case intent.Operation == draft.Operation || intent.Operation == OpNone || intent.Operation == "":
		if intent.Params.IsZero() {
			// Nothing usable; keep the draft and ask again.
			probs := d.reask(ctx, draft)
			return Reply{Text: question(draft.Operation, probs), Operation: draft.Operation, Missing: draft.Missing}
		}
		next := &Draft{Operation: draft.Operation, Params: draft.Params.Merge(intent.Params, d.loc)}
		return d.advance(ctx, conv, next)
	default:
		d.logger.Debug("draft abandoned for new intent",
			zap.String("conversation", conv.ID),
			zap.String("from", string(draft.Operation)),
			zap.String("to", string(intent.Operation)))
		return d.route(ctx, conv, intent)
	}
}

// reask rebuilds the outstanding questions for an unchanged draft.
func (d *Dispatcher) reask(ctx context.Context, draft *Draft) []problem {
	_, probs, err := d.complete(ctx, draft)
	if err != nil || len(probs) == 0 {
		probs = make([]problem, 0, len(draft.Missing))
		for _, f := range draft.Missing {
			probs = append(probs, problem{field: f, ask: strings.ReplaceAll(f, "_", " ")})
		}
	}
	return probs
}

func (d *Dispatcher) confirm(ctx context.Context, conv *Conversation, utterance string) Reply {
	pending := conv.pending
	decision := ParseConfirmation(utterance)

	switch decision {
	case DecisionAffirm:
		d.observeConfirmation(decision)
		// Clear before running so a second "yes" can never repeat the call.
		conv.Reset()
		return d.execute(ctx, pending.action)

	case DecisionDeny:
		d.observeConfirmation(decision)
		conv.Reset()
		return Reply{Text: "OK, I won't do that. Nothing was changed.", Operation: pending.Operation}

	case DecisionAmend:
		d.observeConfirmation(decision)
		conv.Reset()
		return Reply{
			Text:      "I haven't done anything yet. Since you changed the details, please restate the full request.",
			Operation: pending.Operation,
		}

	case DecisionDenyMore:
		d.observeConfirmation(decision)
		conv.Reset()
		if intent, err := d.classify(ctx, conv, utterance, ""); err == nil && intent.Operation.Valid() {
			return d.route(ctx, conv, intent)
		}
		return Reply{Text: "OK, I dropped that. Nothing was changed. Please restate what you'd like.", Operation: pending.Operation}
	}

	// Ambiguous: never act. A clear new request replaces the pending one.
	if intent, err := d.classify(ctx, conv, utterance, ""); err == nil && intent.Operation.Valid() {
		d.observeConfirmation("reclassified")
		d.logger.Debug("pending action abandoned for new intent",
			zap.String("conversation", conv.ID),
			zap.String("from", string(pending.Operation)),
			zap.String("to", string(intent.Operation)))
		return d.route(ctx, conv, intent)
	}

	conv.ambiguous++
	if conv.ambiguous >= maxAmbiguous {
		d.observeConfirmation("dropped")
		conv.Reset()
		return Reply{Text: "I still can't tell whether to go ahead, so I dropped it. Nothing was changed.", Operation: pending.Operation}
	}
	d.observeConfirmation(decision)
	return Reply{
		Text:      "Please answer yes or no. " + pending.Summary + confirmSuffix,
		Operation: pending.Operation,
	}
}

// execute runs an action exactly once and renders the outcome.
func (d *Dispatcher) execute(ctx context.Context, act action) Reply {
	op := act.operation()
	text, err := act.run(ctx, d.gw, d.format)
	if err != nil {
		d.logger.Info("operation failed", zap.String("operation", string(op)), zap.Error(err))
		return d.failure(op, bookingTarget(act), err)
	}
	return Reply{Text: text, Operation: op, Executed: true}
}

func (d *Dispatcher) failure(op Operation, bookingID int, err error) Reply {
	var n notice
	if errors.As(err, &n) {
		return Reply{Text: string(n), Operation: op}
	}
	return Reply{Text: d.format.Error(op, bookingID, err), Operation: op, ErrorKind: calcom.KindOf(err)}
}

func (d *Dispatcher) classify(ctx context.Context, conv *Conversation, utterance string, draft Operation) (Intent, error) {
	req := Request{
		Utterance: utterance,
		History:   conv.history(historyLimit),
		Now:       d.now(),
		Location:  d.loc,
		Draft:     draft,
	}
	intent, err := d.classifier.Classify(ctx, req)
	if err != nil {
		return Intent{}, fmt.Errorf("classify: %w", err)
	}
	return intent, nil
}

func (d *Dispatcher) classifierFailed(conv *Conversation, err error) Reply {
	d.logger.Warn("classifier failed", zap.String("conversation", conv.ID), zap.Error(err))
	conv.Reset()
	return Reply{Text: fmt.Sprintf("Sorry, I couldn't understand that request (%v). Please try again.", err)}
}

func (d *Dispatcher) observeConfirmation(decision Decision) {
	if d.observer != nil {
		d.observer.ObserveConfirmation(string(decision))
	}
}
