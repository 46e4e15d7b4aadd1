package calcom

import (
	"strings"
	"time"
)

// EventType is a bookable meeting template on the scheduling service.
type EventType struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Length      int    `json:"length"` // minutes
	Description string `json:"description,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"`
}

// Duration returns the event length as a time.Duration.
func (e EventType) Duration() time.Duration {
	return time.Duration(e.Length) * time.Minute
}

// Slot is one bookable interval. End is zero when the event length is unknown.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
}

// BookingStatus is the normalized lifecycle state of a booking.
type BookingStatus string

const (
	StatusConfirmed   BookingStatus = "confirmed"
	StatusCancelled   BookingStatus = "cancelled"
	StatusRescheduled BookingStatus = "rescheduled"
	StatusPending     BookingStatus = "pending"
	StatusRejected    BookingStatus = "rejected"
)

// Attendee is a person invited to a booking.
type Attendee struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Booking is a scheduled instance of an event type.
type Booking struct {
	ID          int           `json:"id"`
	UID         string        `json:"uid,omitempty"`
	EventTypeID int           `json:"eventTypeId"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	Status      BookingStatus `json:"status"`
	Attendees   []Attendee    `json:"attendees"`
}

// PrimaryAttendee returns the first attendee, or a zero value.
func (b Booking) PrimaryAttendee() Attendee {
	if len(b.Attendees) == 0 {
		return Attendee{}
	}
	return b.Attendees[0]
}

// HasAttendee reports whether email is among the attendees (case-insensitive).
func (b Booking) HasAttendee(email string) bool {
	for _, a := range b.Attendees {
		if strings.EqualFold(a.Email, email) {
			return true
		}
	}
	return false
}

// Length returns the booked duration.
func (b Booking) Length() time.Duration {
	if b.End.IsZero() || b.Start.IsZero() {
		return 0
	}
	return b.End.Sub(b.Start)
}

// AvailabilityQuery asks for open slots of one event type.
type AvailabilityQuery struct {
	EventTypeID int
	Length      int // minutes; used to fill Slot.End
	From        time.Time
	To          time.Time
	Timezone    string // empty means the client location
}

// BookingRequest holds everything needed to create a booking.
type BookingRequest struct {
	EventTypeID   int
	Length        time.Duration
	Start         time.Time
	AttendeeName  string
	AttendeeEmail string
	Title         string
	Description   string
	Timezone      string // empty means the client location
}

// BookingFilter narrows ListBookings. Zero values mean "no constraint".
type BookingFilter struct {
	AttendeeEmail string
	From          time.Time
	To            time.Time
}

// Matches reports whether b passes the filter. The range is [From, To).
func (f BookingFilter) Matches(b Booking) bool {
	if f.AttendeeEmail != "" && !b.HasAttendee(f.AttendeeEmail) {
		return false
	}
	if !f.From.IsZero() && b.Start.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !b.Start.Before(f.To) {
		return false
	}
	return true
}

// RescheduleRequest moves an existing booking.
type RescheduleRequest struct {
	BookingID int
	Start     time.Time
	Length    time.Duration
}

// CancelResult confirms a cancellation.
type CancelResult struct {
	BookingID int    `json:"bookingId"`
	Message   string `json:"message"`
}

// EventTypeRequest creates a new event type.
type EventTypeRequest struct {
	Title       string
	Slug        string // derived from Title when empty
	Length      int    // minutes
	Description string
	Hidden      bool
}
