package dispatch

import (
	"fmt"
	"strings"
	"time"

	"calassist/internal/calcom"
)

const maxListedSlots = 20

// Formatter renders scheduling values as conversation text. The zero value
// uses UTC and the wall clock.
type Formatter struct {
	Location *time.Location
	Now      func() time.Time
}

func (f Formatter) loc() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

func (f Formatter) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

// Day renders a date relative to now: "today", "tomorrow" or "Mon Jan 2".
func (f Formatter) Day(t time.Time) string {
	loc := f.loc()
	t = t.In(loc)
	now := f.now().In(loc)
	if sameDay(t, now) {
		return "today"
	}
	if sameDay(t, now.AddDate(0, 0, 1)) {
		return "tomorrow"
	}
	if t.Year() != now.Year() {
		return t.Format("Mon Jan 2 2006")
	}
	return t.Format("Mon Jan 2")
}

// When renders a timestamp as "tomorrow 10:00 AM America/Los_Angeles".
func (f Formatter) When(t time.Time) string {
	return fmt.Sprintf("%s %s %s", f.Day(t), t.In(f.loc()).Format("3:04 PM"), f.loc().String())
}

func (f Formatter) clock(t time.Time) string {
	return t.In(f.loc()).Format("3:04 PM")
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func attendeeText(name, email string) string {
	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s (%s)", name, email)
	case email != "":
		return email
	default:
		return name
	}
}

// BookingRequest summarizes a booking that has not been made yet.
func (f Formatter) BookingRequest(req calcom.BookingRequest) string {
	return fmt.Sprintf("Book %d-minute meeting %s with %s",
		int(req.Length/time.Minute), f.When(req.Start), attendeeText(req.AttendeeName, req.AttendeeEmail))
}

// Cancellation summarizes a cancellation that has not happened yet.
func (f Formatter) Cancellation(b calcom.Booking, reason string) string {
	s := "Cancel booking #" + fmt.Sprint(b.ID)
	if b.Title != "" {
		s += fmt.Sprintf(" %q", b.Title)
	}
	if !b.Start.IsZero() {
		s += " " + f.When(b.Start)
	}
	if a := b.PrimaryAttendee(); a.Email != "" || a.Name != "" {
		s += " with " + attendeeText(a.Name, a.Email)
	}
	if reason != "" {
		s += fmt.Sprintf(" (reason: %s)", reason)
	}
	return s
}

// Reschedule summarizes a move that has not happened yet.
func (f Formatter) Reschedule(b calcom.Booking, req calcom.RescheduleRequest) string {
	s := fmt.Sprintf("Move booking #%d", b.ID)
	if !b.Start.IsZero() {
		s += fmt.Sprintf(" from %s %s", f.Day(b.Start), f.clock(b.Start))
	}
	return s + fmt.Sprintf(" to %s (%d minutes)", f.When(req.Start), int(req.Length/time.Minute))
}

// EventTypeRequest summarizes an event type that has not been created yet.
func (f Formatter) EventTypeRequest(req calcom.EventTypeRequest) string {
	slug := req.Slug
	if slug == "" {
		slug = calcom.Slugify(req.Title)
	}
	return fmt.Sprintf("Create event type %q (%d minutes, slug %s)", req.Title, req.Length, slug)
}

// SummarizeEventTypes lists event types one per line.
func (f Formatter) SummarizeEventTypes(list []calcom.EventType) string {
	if len(list) == 0 {
		return "You have no event types yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d event type%s:", len(list), plural(len(list)))
	for _, et := range list {
		fmt.Fprintf(&b, "\n- #%d %s (%d min, /%s)", et.ID, et.Title, et.Length, et.Slug)
		if et.Hidden {
			b.WriteString(" [hidden]")
		}
	}
	return b.String()
}

// SummarizeSlots lists open slots, capped at a readable number.
func (f Formatter) SummarizeSlots(title string, q calcom.AvailabilityQuery, slots []calcom.Slot) string {
	if title == "" {
		title = fmt.Sprintf("event type #%d", q.EventTypeID)
	}
	span := f.Day(q.From)
	if last := q.To.Add(-time.Nanosecond); !sameDay(q.From.In(f.loc()), last.In(f.loc())) {
		span = fmt.Sprintf("between %s and %s", f.Day(q.From), f.Day(last))
	}
	if len(slots) == 0 {
		return fmt.Sprintf("No open slots for %s %s.", title, span)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Open slots for %s %s (%s):", title, span, f.loc().String())
	for i, s := range slots {
		if i == maxListedSlots {
			fmt.Fprintf(&b, "\n…and %d more.", len(slots)-maxListedSlots)
			break
		}
		fmt.Fprintf(&b, "\n- %s %s", f.Day(s.Start), f.clock(s.Start))
	}
	return b.String()
}

// SummarizeBooking renders one booking on a single line.
func (f Formatter) SummarizeBooking(bk calcom.Booking) string {
	s := fmt.Sprintf("#%d", bk.ID)
	if bk.Title != "" {
		s += " " + bk.Title
	}
	if !bk.Start.IsZero() {
		s += ", " + f.When(bk.Start)
	}
	if a := bk.PrimaryAttendee(); a.Email != "" || a.Name != "" {
		s += " with " + attendeeText(a.Name, a.Email)
	}
	if bk.Status != "" {
		s += " [" + string(bk.Status) + "]"
	}
	return s
}

// SummarizeBookings lists bookings one per line.
func (f Formatter) SummarizeBookings(list []calcom.Booking) string {
	if len(list) == 0 {
		return "No bookings found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d booking%s:", len(list), plural(len(list)))
	for _, bk := range list {
		b.WriteString("\n- " + f.SummarizeBooking(bk))
	}
	return b.String()
}

// Booked renders the result of a successful booking.
func (f Formatter) Booked(bk calcom.Booking) string {
	a := bk.PrimaryAttendee()
	s := fmt.Sprintf("Booked! Booking #%d: %s with %s.", bk.ID, f.When(bk.Start), attendeeText(a.Name, a.Email))
	if bk.Status == calcom.StatusPending {
		s += " It is waiting for the host to accept."
	}
	return s
}

// Rescheduled renders the result of a successful move.
func (f Formatter) Rescheduled(bk calcom.Booking) string {
	return fmt.Sprintf("Booking #%d moved to %s.", bk.ID, f.When(bk.Start))
}

// Cancelled renders the result of a successful cancellation.
func (f Formatter) Cancelled(res calcom.CancelResult) string {
	s := fmt.Sprintf("Cancelled booking #%d.", res.BookingID)
	if res.Message != "" && !strings.EqualFold(strings.TrimSuffix(res.Message, "."), fmt.Sprintf("Booking %d cancelled", res.BookingID)) {
		s += " " + res.Message
	}
	return s
}

// CreatedEventType renders the result of a successful event type creation.
func (f Formatter) CreatedEventType(et calcom.EventType) string {
	return fmt.Sprintf("Created event type #%d %q (%d minutes). Booking link slug: %s.", et.ID, et.Title, et.Length, et.Slug)
}

// Error renders err as a plain-language message plus the upstream
// diagnostic. bookingID is the booking the operation targeted, if any.
func (f Formatter) Error(op Operation, bookingID int, err error) string {
	ge, ok := calcom.AsError(err)
	if !ok {
		return fmt.Sprintf("Something went wrong: %v.", err)
	}
	var msg string
	switch ge.Kind {
	case calcom.KindAuth:
		msg = "I couldn't access your Cal.com account: the CAL_API_KEY is missing or was rejected."
	case calcom.KindValidation:
		msg = "The scheduling service rejected the request as invalid."
		if len(ge.Fields) > 0 {
			msg = fmt.Sprintf("The request has an invalid %s.", strings.Join(fieldLabels(ge.Fields), " and "))
		}
	case calcom.KindNotFound:
		if bookingID > 0 {
			msg = fmt.Sprintf("No booking found with id %d.", bookingID)
		} else {
			msg = "The scheduling service couldn't find what you asked for."
		}
	case calcom.KindRateLimit:
		msg = "The scheduling service is rate limiting requests. Wait a moment and try again."
	default:
		switch {
		case ge.Timeout && op.Mutating():
			msg = "The scheduling service timed out. The change may or may not have gone through, so check before trying again."
		case ge.Timeout:
			msg = "The scheduling service timed out."
		default:
			msg = "The scheduling service returned an error."
		}
	}
	if ge.Message != "" {
		msg += " (upstream: " + ge.Message + ")"
	}
	return msg
}

func fieldLabels(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ReplaceAll(f, "_", " "))
	}
	return out
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
