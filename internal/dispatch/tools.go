package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ToolSpec describes one operation to a hosted classifier.
type ToolSpec struct {
	Name        string
	Description string
}

// Tools lists the callable tools, one per operation.
var Tools = []ToolSpec{
	{string(OpListEventTypes), "List the event types (meeting templates) on the account."},
	{string(OpCheckAvailability), "Find open slots for an event type on a day or date range."},
	{string(OpCreateBooking), "Book a meeting for an attendee at a start time."},
	{string(OpListBookings), "List bookings, optionally for one attendee email or date range."},
	{string(OpCancelBooking), "Cancel a booking by id."},
	{string(OpRescheduleBooking), "Move a booking to a new start time."},
	{string(OpCreateEventType), "Create a new event type with a title and duration."},
}

// Argument structs shared by the hosted classifiers. Every field is optional
// so a tool can be called with partial details.

type ListEventTypesArgs struct{}

type CheckAvailabilityArgs struct {
	EventTypeID int    `json:"event_type_id,omitempty" jsonschema:"description=Numeric event type id if the user gave one"`
	EventType   string `json:"event_type,omitempty" jsonschema:"description=Event type title or slug"`
	Duration    int    `json:"duration_minutes,omitempty" jsonschema:"description=Meeting length in minutes"`
	From        string `json:"from,omitempty" jsonschema:"description=First day to check as YYYY-MM-DD"`
	To          string `json:"to,omitempty" jsonschema:"description=Last day to check as YYYY-MM-DD (inclusive)"`
}

type CreateBookingArgs struct {
	EventTypeID   int    `json:"event_type_id,omitempty" jsonschema:"description=Numeric event type id if the user gave one"`
	EventType     string `json:"event_type,omitempty" jsonschema:"description=Event type title or slug"`
	Duration      int    `json:"duration_minutes,omitempty" jsonschema:"description=Meeting length in minutes"`
	Start         string `json:"start,omitempty" jsonschema:"description=Start as YYYY-MM-DDTHH:MM in the user's timezone"`
	AttendeeName  string `json:"attendee_name,omitempty" jsonschema:"description=Name of the person being booked"`
	AttendeeEmail string `json:"attendee_email,omitempty" jsonschema:"description=Email of the person being booked"`
	Title         string `json:"title,omitempty" jsonschema:"description=Optional meeting title"`
	Notes         string `json:"notes,omitempty" jsonschema:"description=Optional notes for the meeting"`
}

type ListBookingsArgs struct {
	AttendeeEmail string `json:"attendee_email,omitempty" jsonschema:"description=Only bookings with this attendee email"`
	From          string `json:"from,omitempty" jsonschema:"description=First day as YYYY-MM-DD"`
	To            string `json:"to,omitempty" jsonschema:"description=Last day as YYYY-MM-DD (inclusive)"`
}

type CancelBookingArgs struct {
	BookingID int    `json:"booking_id,omitempty" jsonschema:"description=Numeric booking id"`
	Reason    string `json:"reason,omitempty" jsonschema:"description=Optional cancellation reason"`
}

type RescheduleBookingArgs struct {
	BookingID int    `json:"booking_id,omitempty" jsonschema:"description=Numeric booking id"`
	Start     string `json:"start,omitempty" jsonschema:"description=New start as YYYY-MM-DDTHH:MM in the user's timezone"`
	Duration  int    `json:"duration_minutes,omitempty" jsonschema:"description=New length in minutes if it changes"`
}

type CreateEventTypeArgs struct {
	Title       string `json:"title,omitempty" jsonschema:"description=Event type title, e.g. Office Hours"`
	Duration    int    `json:"duration_minutes,omitempty" jsonschema:"description=Length in minutes"`
	Description string `json:"description,omitempty" jsonschema:"description=Optional description"`
}

// ToolCall converts a hosted classifier's tool call into an Intent.
func ToolCall(name string, args json.RawMessage, loc *time.Location) (Intent, error) {
	if loc == nil {
		loc = time.UTC
	}
	op := Operation(name)
	if !op.Valid() {
		return Intent{}, fmt.Errorf("unknown tool %q", name)
	}

	var p Params
	var err error
	switch op {
	case OpListEventTypes:
	case OpCheckAvailability:
		var a CheckAvailabilityArgs
		if err = decodeArgs(args, &a); err == nil {
			p = Params{EventTypeID: a.EventTypeID, EventTypeHint: a.EventType, Duration: a.Duration}
			p.From, p.To = ParseRange(a.From, a.To, loc)
		}
	case OpCreateBooking:
		var a CreateBookingArgs
		if err = decodeArgs(args, &a); err == nil {
			p = Params{
				EventTypeID: a.EventTypeID, EventTypeHint: a.EventType, Duration: a.Duration,
				AttendeeName: strings.TrimSpace(a.AttendeeName), AttendeeEmail: strings.TrimSpace(a.AttendeeEmail),
				Title: a.Title, Description: a.Notes,
			}
			p.Start, p.Day = ParseWhen(a.Start, loc)
		}
	case OpListBookings:
		var a ListBookingsArgs
		if err = decodeArgs(args, &a); err == nil {
			p = Params{AttendeeEmail: strings.TrimSpace(a.AttendeeEmail)}
			p.From, p.To = ParseRange(a.From, a.To, loc)
		}
	case OpCancelBooking:
		var a CancelBookingArgs
		if err = decodeArgs(args, &a); err == nil {
			p = Params{BookingID: a.BookingID, Reason: a.Reason}
		}
	case OpRescheduleBooking:
		var a RescheduleBookingArgs
		if err = decodeArgs(args, &a); err == nil {
			p = Params{BookingID: a.BookingID, Duration: a.Duration}
			p.Start, p.Day = ParseWhen(a.Start, loc)
		}
	case OpCreateEventType:
		var a CreateEventTypeArgs
		if err = decodeArgs(args, &a); err == nil {
			p = Params{Title: strings.TrimSpace(a.Title), Duration: a.Duration, Description: a.Description}
		}
	}
	if err != nil {
		return Intent{}, fmt.Errorf("decode %s arguments: %w", name, err)
	}
	return Intent{Operation: op, Params: p}, nil
}

func decodeArgs(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return json.Unmarshal(raw, v)
}

var (
	timestampLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}
	dateLayout       = "2006-01-02"
)

// ParseWhen reads a timestamp or a bare date. Unparseable input yields zero
// values so the dispatcher asks for the field again.
func ParseWhen(s string, loc *time.Location) (start, day time.Time) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), time.Time{}
	}
	for _, layout := range timestampLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, time.Time{}
		}
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return time.Time{}, t
	}
	return time.Time{}, time.Time{}
}

// ParseRange reads an inclusive day range into a half-open interval.
func ParseRange(from, to string, loc *time.Location) (time.Time, time.Time) {
	fStart, fDay := ParseWhen(from, loc)
	tStart, tDay := ParseWhen(to, loc)
	f := fStart
	if f.IsZero() {
		f = fDay
	}
	var t time.Time
	switch {
	case !tStart.IsZero():
		t = tStart
	case !tDay.IsZero():
		t = tDay.AddDate(0, 0, 1)
	case !fDay.IsZero():
		t = fDay.AddDate(0, 0, 1)
	}
	return f, t
}
