package dispatch

import (
	"context"

	"calassist/internal/calcom"
)

// action is a fully validated gateway call. Values are copied into the
// action when it is built so nothing can change them before run.
type action interface {
	operation() Operation
	summary(f Formatter) string
	run(ctx context.Context, gw Gateway, f Formatter) (string, error)
}

// bookingTarget returns the booking an action operates on, if any.
func bookingTarget(a action) int {
	switch a := a.(type) {
	case cancelBookingAction:
		return a.booking.ID
	case rescheduleBookingAction:
		return a.req.BookingID
	}
	return 0
}

type listEventTypesAction struct{}

func (listEventTypesAction) operation() Operation   { return OpListEventTypes }
func (listEventTypesAction) summary(Formatter) string { return "List event types" }

func (listEventTypesAction) run(ctx context.Context, gw Gateway, f Formatter) (string, error) {
	list, err := gw.ListEventTypes(ctx)
	if err != nil {
		return "", err
	}
	return f.SummarizeEventTypes(list), nil
}

type availabilityAction struct {
	query calcom.AvailabilityQuery
	title string
}

func (availabilityAction) operation() Operation { return OpCheckAvailability }

func (a availabilityAction) summary(f Formatter) string {
	return "Check availability for " + a.title + " " + f.Day(a.query.From)
}

func (a availabilityAction) run(ctx context.Context, gw Gateway, f Formatter) (string, error) {
	slots, err := gw.ListAvailability(ctx, a.query)
	if err != nil {
		return "", err
	}
	return f.SummarizeSlots(a.title, a.query, slots), nil
}

type createBookingAction struct {
	req calcom.BookingRequest
}

func (createBookingAction) operation() Operation { return OpCreateBooking }

func (a createBookingAction) summary(f Formatter) string { return f.BookingRequest(a.req) }

func (a createBookingAction) run(ctx context.Context, gw Gateway, f Formatter) (string, error) {
	b, err := gw.CreateBooking(ctx, a.req)
	if err != nil {
		return "", err
	}
	return f.Booked(*b), nil
}

type listBookingsAction struct {
	filter calcom.BookingFilter
}

func (listBookingsAction) operation() Operation   { return OpListBookings }
func (listBookingsAction) summary(Formatter) string { return "List bookings" }

func (a listBookingsAction) run(ctx context.Context, gw Gateway, f Formatter) (string, error) {
	list, err := gw.ListBookings(ctx, a.filter)
	if err != nil {
		return "", err
	}
	return f.SummarizeBookings(list), nil
}

type cancelBookingAction struct {
	booking calcom.Booking
	reason  string
}

func (cancelBookingAction) operation() Operation { return OpCancelBooking }

func (a cancelBookingAction) summary(f Formatter) string { return f.Cancellation(a.booking, a.reason) }

func (a cancelBookingAction) run(ctx context.Context, gw Gateway, f Formatter) (string, error) {
	res, err := gw.CancelBooking(ctx, a.booking.ID, a.reason)
	if err != nil {
		return "", err
	}
	return f.Cancelled(*res), nil
}

type rescheduleBookingAction struct {
	booking calcom.Booking
	req     calcom.RescheduleRequest
}

func (rescheduleBookingAction) operation() Operation { return OpRescheduleBooking }

func (a rescheduleBookingAction) summary(f Formatter) string { return f.Reschedule(a.booking, a.req) }

func (a rescheduleBookingAction) run(ctx context.Context, gw Gateway, f Formatter) (string, error) {
	b, err := gw.RescheduleBooking(ctx, a.req)
	if err != nil {
		return "", err
	}
	return f.Rescheduled(*b), nil
}

type createEventTypeAction struct {
	req calcom.EventTypeRequest
}

func (createEventTypeAction) operation() Operation { return OpCreateEventType }

func (a createEventTypeAction) summary(f Formatter) string { return f.EventTypeRequest(a.req) }

func (a createEventTypeAction) run(ctx context.Context, gw Gateway, f Formatter) (string, error) {
	et, err := gw.CreateEventType(ctx, a.req)
	if err != nil {
		return "", err
	}
	return f.CreatedEventType(*et), nil
}
