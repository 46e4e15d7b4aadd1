package calcom

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"sort"
	"strings"
	"time"
)

type attendeeWire struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	TimeZone string `json:"timeZone"`
}

type bookingWire struct {
	ID          int            `json:"id"`
	UID         string         `json:"uid"`
	EventTypeID int            `json:"eventTypeId"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	StartTime   string         `json:"startTime"`
	EndTime     string         `json:"endTime"`
	Status      string         `json:"status"`
	Rescheduled bool           `json:"rescheduled"`
	Attendees   []attendeeWire `json:"attendees"`
}

func (c *Client) toBooking(w bookingWire) Booking {
	b := Booking{
		ID:          w.ID,
		UID:         w.UID,
		EventTypeID: w.EventTypeID,
		Title:       w.Title,
		Description: w.Description,
		Start:       c.parseTime(w.StartTime),
		End:         c.parseTime(w.EndTime),
		Status:      normalizeStatus(w.Status, w.Rescheduled),
	}
	for _, a := range w.Attendees {
		b.Attendees = append(b.Attendees, Attendee{Name: a.Name, Email: a.Email, TimeZone: a.TimeZone})
	}
	return b
}

func normalizeStatus(s string, rescheduled bool) BookingStatus {
	switch strings.ToUpper(s) {
	case "ACCEPTED", "":
		return StatusConfirmed
	case "CANCELLED", "CANCELED":
		if rescheduled {
			return StatusRescheduled
		}
		return StatusCancelled
	case "PENDING", "AWAITING_HOST":
		return StatusPending
	case "REJECTED":
		return StatusRejected
	default:
		return BookingStatus(strings.ToLower(s))
	}
}

// bookingEnvelope accepts both `{"booking": {...}}` and a bare booking body.
type bookingEnvelope struct {
	Booking *bookingWire `json:"booking"`
	bookingWire
}

func (e bookingEnvelope) wire() bookingWire {
	if e.Booking != nil {
		return *e.Booking
	}
	return e.bookingWire
}

type bookingsResponse struct {
	Bookings []bookingWire `json:"bookings"`
}

type createBookingBody struct {
	EventTypeID int               `json:"eventTypeId"`
	Start       string            `json:"start"`
	End         string            `json:"end"`
	TimeZone    string            `json:"timeZone"`
	Language    string            `json:"language"`
	Responses   bookingResponses  `json:"responses"`
	Metadata    map[string]string `json:"metadata"`
}

type bookingResponses struct {
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Location string            `json:"location"`
	Metadata map[string]string `json:"metadata"`
}

// ValidEmail reports whether s is a bare, syntactically valid address.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// CreateBooking books a slot. Parameters are validated locally first; the
// upstream call is made exactly once.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*Booking, error) {
	const op = "create_booking"

	if req.EventTypeID <= 0 {
		return nil, invalid(op, "event_type", "event type is required")
	}
	if req.Length <= 0 {
		return nil, invalid(op, "event_type", "event type length is unknown")
	}
	if strings.TrimSpace(req.AttendeeName) == "" {
		return nil, invalid(op, "attendee_name", "attendee name is required")
	}
	if !ValidEmail(req.AttendeeEmail) {
		return nil, invalid(op, "attendee_email", fmt.Sprintf("%q is not a valid email address", req.AttendeeEmail))
	}
	if !req.Start.After(c.now()) {
		return nil, invalid(op, "start", "start time must be in the future")
	}
	loc, err := c.resolveLocation(op, req.Timezone)
	if err != nil {
		return nil, err
	}

	start := req.Start.In(loc)
	body := createBookingBody{
		EventTypeID: req.EventTypeID,
		Start:       start.Format(time.RFC3339),
		End:         start.Add(req.Length).Format(time.RFC3339),
		TimeZone:    loc.String(),
		Language:    bookingLanguage,
		Responses: bookingResponses{
			Name:     strings.TrimSpace(req.AttendeeName),
			Email:    strings.TrimSpace(req.AttendeeEmail),
			Location: "integrations:cal",
			Metadata: map[string]string{},
		},
		Metadata: map[string]string{},
	}
	if req.Title != "" {
		body.Metadata["title"] = req.Title
	}
	if req.Description != "" {
		body.Metadata["description"] = req.Description
	}

	var resp bookingEnvelope
	if err := c.do(ctx, op, http.MethodPost, "bookings", nil, body, &resp); err != nil {
		return nil, err
	}
	b := c.toBooking(resp.wire())
	// Some answers omit fields we sent; fill them from the request.
	if b.EventTypeID == 0 {
		b.EventTypeID = req.EventTypeID
	}
	if b.Start.IsZero() {
		b.Start = start.In(c.loc)
		b.End = start.Add(req.Length).In(c.loc)
	}
	if len(b.Attendees) == 0 {
		b.Attendees = []Attendee{{Name: body.Responses.Name, Email: body.Responses.Email, TimeZone: loc.String()}}
	}
	return &b, nil
}

// ListBookings returns bookings matching filter, earliest first. Filtering
// happens locally because v1 has no attendee filter.
func (c *Client) ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error) {
	const op = "list_bookings"

	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, invalid(op, "date_range", "range start must not be after range end")
	}

	var resp bookingsResponse
	if err := c.do(ctx, op, http.MethodGet, "bookings", nil, nil, &resp); err != nil {
		return nil, err
	}
	var out []Booking
	for _, w := range resp.Bookings {
		b := c.toBooking(w)
		if filter.Matches(b) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// GetBooking fetches one booking by id.
func (c *Client) GetBooking(ctx context.Context, id int) (*Booking, error) {
	const op = "get_booking"

	if id <= 0 {
		return nil, invalid(op, "booking_id", "booking id is required")
	}
	var resp bookingEnvelope
	if err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("bookings/%d", id), nil, nil, &resp); err != nil {
		return nil, err
	}
	b := c.toBooking(resp.wire())
	if b.ID == 0 {
		return nil, &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf("booking %d not in response", id)}
	}
	return &b, nil
}

// CancelBooking cancels a booking. One request, no retry.
func (c *Client) CancelBooking(ctx context.Context, id int, reason string) (*CancelResult, error) {
	const op = "cancel_booking"

	if id <= 0 {
		return nil, invalid(op, "booking_id", "booking id is required")
	}
	var query url.Values
	if reason = strings.TrimSpace(reason); reason != "" {
		query = url.Values{"cancellationReason": {reason}}
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, op, http.MethodDelete, fmt.Sprintf("bookings/%d", id), query, nil, &resp); err != nil {
		return nil, err
	}
	msg := resp.Message
	if msg == "" {
		msg = fmt.Sprintf("Booking %d cancelled.", id)
	}
	return &CancelResult{BookingID: id, Message: msg}, nil
}

type rescheduleBody struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// RescheduleBooking moves a booking to a new start. One PATCH request.
func (c *Client) RescheduleBooking(ctx context.Context, req RescheduleRequest) (*Booking, error) {
	const op = "reschedule_booking"

	if req.BookingID <= 0 {
		return nil, invalid(op, "booking_id", "booking id is required")
	}
	if req.Length <= 0 {
		return nil, invalid(op, "booking_id", "booking length is unknown")
	}
	if !req.Start.After(c.now()) {
		return nil, invalid(op, "start", "new start time must be in the future")
	}

	start := req.Start.In(c.loc)
	body := rescheduleBody{
		StartTime: start.Format(time.RFC3339),
		EndTime:   start.Add(req.Length).Format(time.RFC3339),
	}
	var resp bookingEnvelope
	if err := c.do(ctx, op, http.MethodPatch, fmt.Sprintf("bookings/%d", req.BookingID), nil, body, &resp); err != nil {
		return nil, err
	}
	b := c.toBooking(resp.wire())
	if b.ID == 0 {
		b.ID = req.BookingID
	}
	if b.Start.IsZero() {
		b.Start = start
		b.End = start.Add(req.Length)
	}
	return &b, nil
}
