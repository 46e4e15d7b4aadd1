package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"calassist/internal/calcom"
)

// problem is one missing or invalid field of a draft.
type problem struct {
	field string // machine name, e.g. "attendee_email"
	ask   string // what to ask for, e.g. "the attendee's email"
	note  string // why the current value was rejected, if it was
}

// notice ends a turn with a plain message, without an action.
type notice string

func (n notice) Error() string { return string(n) }

// complete validates a draft. It returns either an action ready to run or
// confirm, or the problems that still need clarification. Lookups made
// here are reads; resolved values are written back into the draft.
func (d *Dispatcher) complete(ctx context.Context, draft *Draft) (action, []problem, error) {
	p := &draft.Params
	switch draft.Operation {
	case OpListEventTypes:
		return listEventTypesAction{}, nil, nil
	case OpCheckAvailability:
		return d.completeAvailability(ctx, p)
	case OpCreateBooking:
		return d.completeBooking(ctx, p)
	case OpListBookings:
		return d.completeListBookings(p)
	case OpCancelBooking:
		return d.completeCancel(ctx, p)
	case OpRescheduleBooking:
		return d.completeReschedule(ctx, p)
	case OpCreateEventType:
		return d.completeEventType(p)
	}
	return nil, nil, fmt.Errorf("unsupported operation %q", draft.Operation)
}

func (d *Dispatcher) completeAvailability(ctx context.Context, p *Params) (action, []problem, error) {
	var probs []problem
	et, prob, err := d.resolveEventType(ctx, p, false)
	if err != nil {
		return nil, nil, err
	}
	if prob != nil {
		probs = append(probs, *prob)
	}
	from, to, ok := d.dateRange(*p)
	switch {
	case !ok:
		probs = append(probs, problem{field: "date_range", ask: "the day or date range to check"})
	case to.Before(from):
		probs = append(probs, problem{field: "date_range", ask: "a date range that ends after it starts", note: "That range ends before it starts."})
	}
	if len(probs) > 0 {
		return nil, probs, nil
	}
	title := et.Title
	if title == "" {
		title = fmt.Sprintf("event type #%d", et.ID)
	}
	return availabilityAction{
		query: calcom.AvailabilityQuery{EventTypeID: et.ID, Length: et.Length, From: from, To: to},
		title: title,
	}, nil, nil
}

func (d *Dispatcher) completeBooking(ctx context.Context, p *Params) (action, []problem, error) {
	var probs []problem
	et, prob, err := d.resolveEventType(ctx, p, true)
	if err != nil {
		return nil, nil, err
	}
	if prob != nil {
		probs = append(probs, *prob)
	}
	start, prob := d.checkStart(*p, "the start time")
	if prob != nil {
		probs = append(probs, *prob)
	}
	name := strings.TrimSpace(p.AttendeeName)
	if name == "" {
		probs = append(probs, problem{field: "attendee_name", ask: "the attendee's name"})
	}
	if prob := checkEmail(p.AttendeeEmail, name, true); prob != nil {
		probs = append(probs, *prob)
	}
	if len(probs) > 0 {
		return nil, probs, nil
	}
	return createBookingAction{req: calcom.BookingRequest{
		EventTypeID:   et.ID,
		Length:        et.Duration(),
		Start:         start,
		AttendeeName:  name,
		AttendeeEmail: strings.TrimSpace(p.AttendeeEmail),
		Title:         p.Title,
		Description:   p.Description,
	}}, nil, nil
}

func (d *Dispatcher) completeListBookings(p *Params) (action, []problem, error) {
	filter := calcom.BookingFilter{AttendeeEmail: strings.TrimSpace(p.AttendeeEmail)}
	if prob := checkEmail(filter.AttendeeEmail, "", false); prob != nil {
		return nil, []problem{*prob}, nil
	}
	if from, to, ok := d.dateRange(*p); ok {
		if to.Before(from) {
			return nil, []problem{{field: "date_range", ask: "a date range that ends after it starts", note: "That range ends before it starts."}}, nil
		}
		filter.From, filter.To = from, to
	}
	return listBookingsAction{filter: filter}, nil, nil
}

func (d *Dispatcher) completeCancel(ctx context.Context, p *Params) (action, []problem, error) {
	if p.BookingID <= 0 {
		return nil, []problem{{field: "booking_id", ask: "the id of the booking to cancel (say \"show my bookings\" to find it)"}}, nil
	}
	b, err := d.gw.GetBooking(ctx, p.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if b.Status == calcom.StatusCancelled || b.Status == calcom.StatusRescheduled {
		return nil, nil, notice(fmt.Sprintf("Booking #%d is already %s. Nothing to do.", b.ID, b.Status))
	}
	return cancelBookingAction{booking: *b, reason: strings.TrimSpace(p.Reason)}, nil, nil
}

func (d *Dispatcher) completeReschedule(ctx context.Context, p *Params) (action, []problem, error) {
	var probs []problem
	if p.BookingID <= 0 {
		probs = append(probs, problem{field: "booking_id", ask: "the id of the booking to move"})
	}
	start, prob := d.checkStart(*p, "the new start time")
	if prob != nil {
		probs = append(probs, *prob)
	}
	if len(probs) > 0 {
		return nil, probs, nil
	}

	b, err := d.gw.GetBooking(ctx, p.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if b.Status == calcom.StatusCancelled || b.Status == calcom.StatusRescheduled {
		return nil, nil, notice(fmt.Sprintf("Booking #%d is %s and can't be moved.", b.ID, b.Status))
	}
	length := b.Length()
	if p.Duration > 0 {
		length = time.Duration(p.Duration) * time.Minute
	}
	if length <= 0 {
		return nil, []problem{{field: "duration", ask: "the meeting length in minutes"}}, nil
	}
	return rescheduleBookingAction{
		booking: *b,
		req:     calcom.RescheduleRequest{BookingID: b.ID, Start: start, Length: length},
	}, nil, nil
}

func (d *Dispatcher) completeEventType(p *Params) (action, []problem, error) {
	var probs []problem
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = strings.TrimSpace(p.EventTypeHint)
	}
	switch {
	case title == "":
		probs = append(probs, problem{field: "title", ask: "the title"})
	case calcom.Slugify(title) == "":
		probs = append(probs, problem{field: "title", ask: "a title with letters or digits", note: fmt.Sprintf("%q can't be turned into a booking link.", title)})
	}
	switch {
	case p.Duration == 0:
		probs = append(probs, problem{field: "duration", ask: "the duration in minutes"})
	case p.Duration < 0:
		probs = append(probs, problem{field: "duration", ask: "a duration greater than zero", note: "The duration must be positive."})
	}
	if len(probs) > 0 {
		return nil, probs, nil
	}
	return createEventTypeAction{req: calcom.EventTypeRequest{
		Title:       title,
		Slug:        calcom.Slugify(title),
		Length:      p.Duration,
		Description: p.Description,
	}}, nil, nil
}

// resolveEventType finds the event type a draft refers to. The upstream
// list is read only when the user gave a hint; otherwise the event type is
// simply reported as missing.
func (d *Dispatcher) resolveEventType(ctx context.Context, p *Params, needLength bool) (calcom.EventType, *problem, error) {
	if p.EventTypeID > 0 && (!needLength || p.Duration > 0) {
		return calcom.EventType{ID: p.EventTypeID, Title: p.EventTypeHint, Length: p.Duration}, nil, nil
	}
	if p.EventTypeID <= 0 && p.EventTypeHint == "" && p.Duration <= 0 {
		return calcom.EventType{}, &problem{field: "event_type", ask: "the event type"}, nil
	}

	list, err := d.gw.ListEventTypes(ctx)
	if err != nil {
		return calcom.EventType{}, nil, err
	}
	matches := matchEventTypes(list, *p)
	switch len(matches) {
	case 1:
		et := matches[0]
		p.EventTypeID, p.EventTypeHint, p.Duration = et.ID, et.Title, et.Length
		return et, nil, nil
	case 0:
		note := fmt.Sprintf("I couldn't find %s.", describeHint(*p))
		if len(list) == 0 {
			note += " You have no event types yet."
		} else {
			note += " You have " + eventTypeNames(list) + "."
		}
		p.EventTypeID, p.EventTypeHint = 0, ""
		return calcom.EventType{}, &problem{field: "event_type", ask: "the event type", note: note}, nil
	default:
		return calcom.EventType{}, &problem{
			field: "event_type",
			ask:   "which event type you mean",
			note:  "Several event types match: " + eventTypeNames(matches) + ".",
		}, nil
	}
}

func matchEventTypes(list []calcom.EventType, p Params) []calcom.EventType {
	var out []calcom.EventType
	if p.EventTypeID > 0 {
		for _, et := range list {
			if et.ID == p.EventTypeID {
				out = append(out, et)
			}
		}
		return out
	}
	if hint := strings.TrimSpace(p.EventTypeHint); hint != "" {
		for _, et := range list {
			if strings.EqualFold(et.Title, hint) || strings.EqualFold(et.Slug, hint) {
				out = append(out, et)
			}
		}
		if len(out) == 0 {
			h := strings.ToLower(hint)
			for _, et := range list {
				if strings.Contains(strings.ToLower(et.Title), h) || strings.Contains(et.Slug, calcom.Slugify(hint)) {
					out = append(out, et)
				}
			}
		}
		if len(out) > 1 && p.Duration > 0 {
			out = filterLength(out, p.Duration)
		}
		return out
	}
	out = filterLength(list, p.Duration)
	if len(out) > 1 {
		var visible []calcom.EventType
		for _, et := range out {
			if !et.Hidden {
				visible = append(visible, et)
			}
		}
		if len(visible) > 0 {
			out = visible
		}
	}
	return out
}

func filterLength(list []calcom.EventType, minutes int) []calcom.EventType {
	var out []calcom.EventType
	for _, et := range list {
		if et.Length == minutes {
			out = append(out, et)
		}
	}
	return out
}

func describeHint(p Params) string {
	switch {
	case p.EventTypeID > 0:
		return fmt.Sprintf("an event type with id %d", p.EventTypeID)
	case p.EventTypeHint != "":
		return fmt.Sprintf("an event type called %q", p.EventTypeHint)
	default:
		return fmt.Sprintf("a %d-minute event type", p.Duration)
	}
}

func eventTypeNames(list []calcom.EventType) string {
	names := make([]string, 0, len(list))
	for _, et := range list {
		names = append(names, fmt.Sprintf("%s (#%d, %d min)", et.Title, et.ID, et.Length))
	}
	return joinAnd(names)
}

// checkStart validates the start time of a draft.
func (d *Dispatcher) checkStart(p Params, ask string) (time.Time, *problem) {
	start := p.StartIn(d.loc)
	switch {
	case !start.IsZero():
	case !p.Day.IsZero():
		return time.Time{}, &problem{field: "start", ask: "the time of day"}
	case p.Clock != nil:
		return time.Time{}, &problem{field: "start", ask: "the date"}
	default:
		return time.Time{}, &problem{field: "start", ask: ask}
	}
	if !start.After(d.now()) {
		return time.Time{}, &problem{
			field: "start",
			ask:   "a start time in the future",
			note:  fmt.Sprintf("%s is in the past.", d.format.When(start)),
		}
	}
	return start, nil
}

func checkEmail(email, name string, required bool) *problem {
	email = strings.TrimSpace(email)
	ask := "the attendee's email"
	if name != "" {
		ask = name + "'s email"
	}
	switch {
	case email == "" && required:
		return &problem{field: "attendee_email", ask: ask}
	case email != "" && !calcom.ValidEmail(email):
		return &problem{field: "attendee_email", ask: "a valid email address", note: fmt.Sprintf("%q is not a valid email address.", email)}
	}
	return nil
}

// dateRange derives a [from, to) window from the draft.
func (d *Dispatcher) dateRange(p Params) (time.Time, time.Time, bool) {
	var from time.Time
	switch {
	case !p.From.IsZero():
		from = p.From.In(d.loc)
		if !p.To.IsZero() {
			return from, p.To.In(d.loc), true
		}
	case !p.Day.IsZero():
		from = p.Day.In(d.loc)
	case !p.Start.IsZero():
		from = p.Start.In(d.loc)
	default:
		return time.Time{}, time.Time{}, false
	}
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, d.loc)
	return from, from.AddDate(0, 0, 1), true
}

// question asks for exactly the fields in probs.
func question(op Operation, probs []problem) string {
	var notes, asks []string
	for _, p := range probs {
		if p.note != "" {
			notes = append(notes, p.note)
		}
		asks = append(asks, p.ask)
	}
	q := fmt.Sprintf("To %s I still need %s.", verb(op), joinAnd(asks))
	if len(notes) > 0 {
		q = strings.Join(notes, " ") + " " + q
	}
	return q
}

func fields(probs []problem) []string {
	out := make([]string, 0, len(probs))
	for _, p := range probs {
		out = append(out, p.field)
	}
	return out
}

func verb(op Operation) string {
	switch op {
	case OpCheckAvailability:
		return "check availability"
	case OpCreateBooking:
		return "book this"
	case OpListBookings:
		return "list your bookings"
	case OpCancelBooking:
		return "cancel a booking"
	case OpRescheduleBooking:
		return "reschedule"
	case OpCreateEventType:
		return "create the event type"
	}
	return "do that"
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
