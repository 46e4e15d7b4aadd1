package dispatch

import (
	"context"
	"time"
)

// Operation names one scheduling action a user can ask for.
type Operation string

const (
	OpNone              Operation = "none"
	OpListEventTypes    Operation = "list_event_types"
	OpCheckAvailability Operation = "check_availability"
	OpCreateBooking     Operation = "create_booking"
	OpListBookings      Operation = "list_bookings"
	OpCancelBooking     Operation = "cancel_booking"
	OpRescheduleBooking Operation = "reschedule_booking"
	OpCreateEventType   Operation = "create_event_type"
)

// Operations lists every actionable operation in a stable order.
var Operations = []Operation{
	OpListEventTypes,
	OpCheckAvailability,
	OpCreateBooking,
	OpListBookings,
	OpCancelBooking,
	OpRescheduleBooking,
	OpCreateEventType,
}

// Valid reports whether o is one of the seven actionable operations.
func (o Operation) Valid() bool {
	for _, op := range Operations {
		if o == op {
			return true
		}
	}
	return false
}

// Mutating reports whether o has side effects and needs confirmation.
func (o Operation) Mutating() bool {
	switch o {
	case OpCreateBooking, OpCancelBooking, OpRescheduleBooking, OpCreateEventType:
		return true
	}
	return false
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Params is everything a classifier could extract from an utterance. All
// fields are optional; zero means "not mentioned".
type Params struct {
	EventTypeID   int    `json:"eventTypeId,omitempty"`
	EventTypeHint string `json:"eventTypeHint,omitempty"` // title or slug
	Duration      int    `json:"duration,omitempty"`      // minutes

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// Start is a complete timestamp. Day and Clock hold the halves when the
	// user gave only one of them so far.
	Start time.Time  `json:"start,omitempty"`
	Day   time.Time  `json:"day,omitempty"`
	Clock *TimeOfDay `json:"clock,omitempty"`

	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`

	AttendeeName  string `json:"attendeeName,omitempty"`
	AttendeeEmail string `json:"attendeeEmail,omitempty"`

	BookingID int    `json:"bookingId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// IsZero reports whether nothing was extracted.
func (p Params) IsZero() bool {
	return p.EventTypeID == 0 && p.EventTypeHint == "" && p.Duration == 0 &&
		p.Title == "" && p.Description == "" &&
		p.Start.IsZero() && p.Day.IsZero() && p.Clock == nil &&
		p.From.IsZero() && p.To.IsZero() &&
		p.AttendeeName == "" && p.AttendeeEmail == "" &&
		p.BookingID == 0 && p.Reason == ""
}

// StartIn returns the start time, combining Day and Clock when needed.
func (p Params) StartIn(loc *time.Location) time.Time {
	if !p.Start.IsZero() {
		return p.Start.In(loc)
	}
	if p.Day.IsZero() || p.Clock == nil {
		return time.Time{}
	}
	d := p.Day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), p.Clock.Hour, p.Clock.Minute, 0, 0, loc)
}

// Merge overlays the non-zero fields of o onto p.
func (p Params) Merge(o Params, loc *time.Location) Params {
	if o.EventTypeID != 0 {
		p.EventTypeID = o.EventTypeID
		p.EventTypeHint = ""
	}
	if o.EventTypeHint != "" {
		p.EventTypeHint = o.EventTypeHint
		if o.EventTypeID == 0 {
			p.EventTypeID = 0
		}
	}
	if o.Duration != 0 {
		p.Duration = o.Duration
	}
	if o.Title != "" {
		p.Title = o.Title
	}
	if o.Description != "" {
		p.Description = o.Description
	}

	switch {
	case !o.Start.IsZero():
		p.Start, p.Day, p.Clock = o.Start, time.Time{}, nil
	case !o.Day.IsZero() || o.Clock != nil:
		// Changing one half of a known start keeps the other half.
		if !p.Start.IsZero() {
			s := p.Start.In(loc)
			p.Day = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
			p.Clock = &TimeOfDay{Hour: s.Hour(), Minute: s.Minute()}
			p.Start = time.Time{}
		}
		if !o.Day.IsZero() {
			p.Day = o.Day
		}
		if o.Clock != nil {
			p.Clock = o.Clock
		}
	}

	if !o.From.IsZero() {
		p.From = o.From
	}
	if !o.To.IsZero() {
		p.To = o.To
	}
	if o.AttendeeName != "" {
		p.AttendeeName = o.AttendeeName
	}
	if o.AttendeeEmail != "" {
		p.AttendeeEmail = o.AttendeeEmail
	}
	if o.BookingID != 0 {
		p.BookingID = o.BookingID
	}
	if o.Reason != "" {
		p.Reason = o.Reason
	}
	return p
}

// Intent is a classifier's reading of one utterance.
type Intent struct {
	Operation Operation `json:"operation"`
	Params    Params    `json:"params"`
	// Reply is free text for OpNone, such as a greeting or an answer.
	Reply string `json:"reply,omitempty"`
}

// Request is the input to a classifier.
type Request struct {
	Utterance string
	History   []Turn
	Now       time.Time
	Location  *time.Location
	// Draft is the operation whose parameters are being collected, if any.
	Draft Operation
}

// Classifier turns an utterance into an Intent. Implementations must not
// call the scheduling service.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Intent, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, req Request) (Intent, error)

func (f ClassifierFunc) Classify(ctx context.Context, req Request) (Intent, error) {
	return f(ctx, req)
}
