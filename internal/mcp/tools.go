package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"calassist/internal/calcom"
	"calassist/internal/dispatch"
)

const confirmHint = "Nothing was changed. Show the summary to the user and call again with confirmed=true if they agree."

// fail renders a gateway error the same way the chat surfaces do.
func (s *Server) fail(op dispatch.Operation, bookingID int, err error) error {
	s.logger.Warn("tool failed", zap.String("tool", string(op)), zap.Error(err))
	return errors.New(s.format.Error(op, bookingID, err))
}

func (s *Server) parseStart(value string) (time.Time, error) {
	start, _ := dispatch.ParseWhen(value, s.loc)
	if start.IsZero() {
		return time.Time{}, fmt.Errorf("start %q must be YYYY-MM-DDTHH:MM (%s) or RFC 3339", value, s.loc)
	}
	return start, nil
}

// bookingView and slotView carry timestamps as RFC 3339 strings so the
// inferred output schemas stay plain.
type bookingView struct {
	ID          int               `json:"id"`
	EventTypeID int               `json:"event_type_id,omitempty"`
	Title       string            `json:"title"`
	Start       string            `json:"start"`
	End         string            `json:"end,omitempty"`
	Status      string            `json:"status"`
	Attendees   []calcom.Attendee `json:"attendees"`
}

type slotView struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

func (s *Server) stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(s.loc).Format(time.RFC3339)
}

func (s *Server) viewBooking(b calcom.Booking) *bookingView {
	attendees := b.Attendees
	if attendees == nil {
		attendees = []calcom.Attendee{}
	}
	return &bookingView{
		ID:          b.ID,
		EventTypeID: b.EventTypeID,
		Title:       b.Title,
		Start:       s.stamp(b.Start),
		End:         s.stamp(b.End),
		Status:      string(b.Status),
		Attendees:   attendees,
	}
}

// -- list_event_types --

type listEventTypesInput struct{}

type listEventTypesOutput struct {
	EventTypes []calcom.EventType `json:"event_types"`
	Text       string             `json:"text"`
}

func (s *Server) listEventTypes(ctx context.Context, req *mcpsdk.CallToolRequest, input listEventTypesInput) (*mcpsdk.CallToolResult, listEventTypesOutput, error) {
	list, err := s.gw.ListEventTypes(ctx)
	if err != nil {
		return nil, listEventTypesOutput{}, s.fail(dispatch.OpListEventTypes, 0, err)
	}
	if list == nil {
		list = []calcom.EventType{}
	}
	return nil, listEventTypesOutput{EventTypes: list, Text: s.format.SummarizeEventTypes(list)}, nil
}

// -- check_availability --

type checkAvailabilityInput struct {
	EventTypeID int    `json:"event_type_id" jsonschema:"Numeric event type id (see list_event_types)"`
	From        string `json:"from" jsonschema:"First day as YYYY-MM-DD"`
	To          string `json:"to,omitempty" jsonschema:"Last day as YYYY-MM-DD (inclusive); defaults to from"`
	Duration    int    `json:"duration_minutes,omitempty" jsonschema:"Slot length in minutes; defaults to the event type length"`
}

type checkAvailabilityOutput struct {
	Slots []slotView `json:"slots"`
	Text  string     `json:"text"`
}

func (s *Server) checkAvailability(ctx context.Context, req *mcpsdk.CallToolRequest, input checkAvailabilityInput) (*mcpsdk.CallToolResult, checkAvailabilityOutput, error) {
	if input.EventTypeID <= 0 {
		return nil, checkAvailabilityOutput{}, fmt.Errorf("event_type_id is required")
	}
	from, to := dispatch.ParseRange(input.From, input.To, s.loc)
	if from.IsZero() || to.IsZero() {
		return nil, checkAvailabilityOutput{}, fmt.Errorf("from must be a date as YYYY-MM-DD")
	}
	q := calcom.AvailabilityQuery{EventTypeID: input.EventTypeID, From: from, To: to, Length: input.Duration}
	title := ""
	if q.Length <= 0 {
		et, err := s.eventType(ctx, dispatch.OpCheckAvailability, input.EventTypeID)
		if err != nil {
			return nil, checkAvailabilityOutput{}, err
		}
		q.Length, title = et.Length, et.Title
	}
	slots, err := s.gw.ListAvailability(ctx, q)
	if err != nil {
		return nil, checkAvailabilityOutput{}, s.fail(dispatch.OpCheckAvailability, 0, err)
	}
	views := make([]slotView, 0, len(slots))
	for _, sl := range slots {
		views = append(views, slotView{Start: s.stamp(sl.Start), End: s.stamp(sl.End)})
	}
	return nil, checkAvailabilityOutput{Slots: views, Text: s.format.SummarizeSlots(title, q, slots)}, nil
}

// eventType finds an event type by id so its length can fill in slot ends
// and booking durations.
func (s *Server) eventType(ctx context.Context, op dispatch.Operation, id int) (*calcom.EventType, error) {
	types, err := s.gw.ListEventTypes(ctx)
	if err != nil {
		return nil, s.fail(op, 0, err)
	}
	for _, et := range types {
		if et.ID == id {
			return &et, nil
		}
	}
	return nil, fmt.Errorf("event type %d not found; call list_event_types", id)
}

// -- list_bookings --

type listBookingsInput struct {
	AttendeeEmail string `json:"attendee_email,omitempty" jsonschema:"Only bookings with this attendee"`
	From          string `json:"from,omitempty" jsonschema:"First day as YYYY-MM-DD"`
	To            string `json:"to,omitempty" jsonschema:"Last day as YYYY-MM-DD (inclusive)"`
}

type listBookingsOutput struct {
	Bookings []bookingView `json:"bookings"`
	Text     string        `json:"text"`
}

func (s *Server) listBookings(ctx context.Context, req *mcpsdk.CallToolRequest, input listBookingsInput) (*mcpsdk.CallToolResult, listBookingsOutput, error) {
	filter := calcom.BookingFilter{AttendeeEmail: strings.TrimSpace(input.AttendeeEmail)}
	filter.From, filter.To = dispatch.ParseRange(input.From, input.To, s.loc)
	list, err := s.gw.ListBookings(ctx, filter)
	if err != nil {
		return nil, listBookingsOutput{}, s.fail(dispatch.OpListBookings, 0, err)
	}
	views := make([]bookingView, 0, len(list))
	for _, b := range list {
		views = append(views, *s.viewBooking(b))
	}
	return nil, listBookingsOutput{Bookings: views, Text: s.format.SummarizeBookings(list)}, nil
}

// -- get_booking --

type getBookingInput struct {
	BookingID int `json:"booking_id" jsonschema:"Numeric booking id"`
}

type getBookingOutput struct {
	Booking bookingView `json:"booking"`
	Text    string      `json:"text"`
}

func (s *Server) getBooking(ctx context.Context, req *mcpsdk.CallToolRequest, input getBookingInput) (*mcpsdk.CallToolResult, getBookingOutput, error) {
	if input.BookingID <= 0 {
		return nil, getBookingOutput{}, fmt.Errorf("booking_id is required")
	}
	b, err := s.gw.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, getBookingOutput{}, s.fail(dispatch.OpListBookings, input.BookingID, err)
	}
	return nil, getBookingOutput{Booking: *s.viewBooking(*b), Text: s.format.SummarizeBooking(*b)}, nil
}

// mutationOutput is shared by every mutating tool.
type mutationOutput struct {
	Confirmed bool              `json:"confirmed"`
	Summary   string            `json:"summary"`
	Message   string            `json:"message"`
	Booking   *bookingView      `json:"booking,omitempty"`
	EventType *calcom.EventType `json:"event_type,omitempty"`
}

func unconfirmed(summary string) mutationOutput {
	return mutationOutput{Summary: summary, Message: confirmHint}
}

// -- create_booking --

type createBookingInput struct {
	EventTypeID   int    `json:"event_type_id" jsonschema:"Numeric event type id (see list_event_types)"`
	Start         string `json:"start" jsonschema:"Start as YYYY-MM-DDTHH:MM in the assistant timezone, or RFC 3339"`
	AttendeeName  string `json:"attendee_name" jsonschema:"Attendee full name"`
	AttendeeEmail string `json:"attendee_email" jsonschema:"Attendee email address"`
	Duration      int    `json:"duration_minutes,omitempty" jsonschema:"Length in minutes; defaults to the event type length"`
	Title         string `json:"title,omitempty" jsonschema:"Optional meeting title"`
	Notes         string `json:"notes,omitempty" jsonschema:"Optional notes"`
	Confirmed     bool   `json:"confirmed,omitempty" jsonschema:"Set to true only after the user approved the summary"`
}

func (s *Server) createBooking(ctx context.Context, req *mcpsdk.CallToolRequest, input createBookingInput) (*mcpsdk.CallToolResult, mutationOutput, error) {
	start, err := s.parseStart(input.Start)
	if err != nil {
		return nil, mutationOutput{}, err
	}
	if input.EventTypeID <= 0 {
		return nil, mutationOutput{}, fmt.Errorf("event_type_id is required")
	}
	length := time.Duration(input.Duration) * time.Minute
	if length <= 0 {
		et, err := s.eventType(ctx, dispatch.OpCreateBooking, input.EventTypeID)
		if err != nil {
			return nil, mutationOutput{}, err
		}
		length = et.Duration()
	}

	br := calcom.BookingRequest{
		EventTypeID:   input.EventTypeID,
		Length:        length,
		Start:         start,
		AttendeeName:  strings.TrimSpace(input.AttendeeName),
		AttendeeEmail: strings.TrimSpace(input.AttendeeEmail),
		Title:         input.Title,
		Description:   input.Notes,
	}
	summary := s.format.BookingRequest(br)
	if !input.Confirmed {
		return nil, unconfirmed(summary), nil
	}

	b, err := s.gw.CreateBooking(ctx, br)
	if err != nil {
		return nil, mutationOutput{}, s.fail(dispatch.OpCreateBooking, 0, err)
	}
	return nil, mutationOutput{Confirmed: true, Summary: summary, Message: s.format.Booked(*b), Booking: s.viewBooking(*b)}, nil
}

// -- cancel_booking --

type cancelBookingInput struct {
	BookingID int    `json:"booking_id" jsonschema:"Numeric booking id"`
	Reason    string `json:"reason,omitempty" jsonschema:"Optional cancellation reason"`
	Confirmed bool   `json:"confirmed,omitempty" jsonschema:"Set to true only after the user approved the summary"`
}

func (s *Server) cancelBooking(ctx context.Context, req *mcpsdk.CallToolRequest, input cancelBookingInput) (*mcpsdk.CallToolResult, mutationOutput, error) {
	if input.BookingID <= 0 {
		return nil, mutationOutput{}, fmt.Errorf("booking_id is required")
	}
	b, err := s.gw.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, mutationOutput{}, s.fail(dispatch.OpCancelBooking, input.BookingID, err)
	}
	if b.Status == calcom.StatusCancelled {
		return nil, mutationOutput{}, fmt.Errorf("booking #%d is already cancelled", b.ID)
	}
	summary := s.format.Cancellation(*b, input.Reason)
	if !input.Confirmed {
		return nil, unconfirmed(summary), nil
	}

	res, err := s.gw.CancelBooking(ctx, b.ID, input.Reason)
	if err != nil {
		return nil, mutationOutput{}, s.fail(dispatch.OpCancelBooking, b.ID, err)
	}
	return nil, mutationOutput{Confirmed: true, Summary: summary, Message: s.format.Cancelled(*res)}, nil
}

// -- reschedule_booking --

type rescheduleBookingInput struct {
	BookingID int    `json:"booking_id" jsonschema:"Numeric booking id"`
	Start     string `json:"start" jsonschema:"New start as YYYY-MM-DDTHH:MM in the assistant timezone, or RFC 3339"`
	Duration  int    `json:"duration_minutes,omitempty" jsonschema:"New length in minutes; defaults to the current length"`
	Confirmed bool   `json:"confirmed,omitempty" jsonschema:"Set to true only after the user approved the summary"`
}

func (s *Server) rescheduleBooking(ctx context.Context, req *mcpsdk.CallToolRequest, input rescheduleBookingInput) (*mcpsdk.CallToolResult, mutationOutput, error) {
	if input.BookingID <= 0 {
		return nil, mutationOutput{}, fmt.Errorf("booking_id is required")
	}
	start, err := s.parseStart(input.Start)
	if err != nil {
		return nil, mutationOutput{}, err
	}
	b, err := s.gw.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, mutationOutput{}, s.fail(dispatch.OpRescheduleBooking, input.BookingID, err)
	}
	if b.Status == calcom.StatusCancelled || b.Status == calcom.StatusRescheduled {
		return nil, mutationOutput{}, fmt.Errorf("booking #%d is %s and can't be moved", b.ID, b.Status)
	}
	length := b.Length()
	if input.Duration > 0 {
		length = time.Duration(input.Duration) * time.Minute
	}
	if length <= 0 {
		return nil, mutationOutput{}, fmt.Errorf("duration_minutes is required: booking #%d has no end time", b.ID)
	}

	rr := calcom.RescheduleRequest{BookingID: b.ID, Start: start, Length: length}
	summary := s.format.Reschedule(*b, rr)
	if !input.Confirmed {
		return nil, unconfirmed(summary), nil
	}

	moved, err := s.gw.RescheduleBooking(ctx, rr)
	if err != nil {
		return nil, mutationOutput{}, s.fail(dispatch.OpRescheduleBooking, b.ID, err)
	}
	return nil, mutationOutput{Confirmed: true, Summary: summary, Message: s.format.Rescheduled(*moved), Booking: s.viewBooking(*moved)}, nil
}

// -- create_event_type --

type createEventTypeInput struct {
	Title       string `json:"title" jsonschema:"Event type title, e.g. Office Hours"`
	Duration    int    `json:"duration_minutes" jsonschema:"Length in minutes"`
	Slug        string `json:"slug,omitempty" jsonschema:"Booking link slug; derived from the title when empty"`
	Description string `json:"description,omitempty" jsonschema:"Optional description"`
	Confirmed   bool   `json:"confirmed,omitempty" jsonschema:"Set to true only after the user approved the summary"`
}

func (s *Server) createEventType(ctx context.Context, req *mcpsdk.CallToolRequest, input createEventTypeInput) (*mcpsdk.CallToolResult, mutationOutput, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || calcom.Slugify(title) == "" {
		return nil, mutationOutput{}, fmt.Errorf("title is required and must contain letters or digits")
	}
	if input.Duration <= 0 {
		return nil, mutationOutput{}, fmt.Errorf("duration_minutes must be greater than zero")
	}
	er := calcom.EventTypeRequest{Title: title, Slug: input.Slug, Length: input.Duration, Description: input.Description}
	summary := s.format.EventTypeRequest(er)
	if !input.Confirmed {
		return nil, unconfirmed(summary), nil
	}

	et, err := s.gw.CreateEventType(ctx, er)
	if err != nil {
		return nil, mutationOutput{}, s.fail(dispatch.OpCreateEventType, 0, err)
	}
	return nil, mutationOutput{Confirmed: true, Summary: summary, Message: s.format.CreatedEventType(*et), EventType: et}, nil
}
