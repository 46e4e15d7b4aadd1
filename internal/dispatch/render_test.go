package dispatch

import (
	"errors"
	"strings"
	"testing"
	"time"

	"calassist/internal/calcom"
)

func testFormatter() Formatter {
	return Formatter{Location: la, Now: func() time.Time { return now }}
}

func TestFormatterDay(t *testing.T) {
	f := testFormatter()
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2026, 10, 14, 18, 0, 0, 0, la), "today"},
		{time.Date(2026, 10, 15, 0, 30, 0, 0, la), "tomorrow"},
		{time.Date(2026, 10, 20, 9, 0, 0, 0, la), "Tue Oct 20"},
		{time.Date(2027, 1, 4, 9, 0, 0, 0, la), "Mon Jan 4 2027"},
		// 06:00 UTC on the 15th is still the 14th in Los Angeles.
		{time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC), "today"},
	}
	for _, tt := range tests {
		if got := f.Day(tt.at); got != tt.want {
			t.Errorf("Day(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestFormatterWhen(t *testing.T) {
	got := testFormatter().When(time.Date(2026, 10, 15, 17, 0, 0, 0, time.UTC))
	if want := "tomorrow 10:00 AM America/Los_Angeles"; got != want {
		t.Errorf("When = %q, want %q", got, want)
	}
}

func TestFormatterError(t *testing.T) {
	f := testFormatter()
	tests := []struct {
		name      string
		op        Operation
		bookingID int
		err       error
		contains  []string
	}{
		{
			name:     "auth",
			op:       OpListBookings,
			err:      &calcom.Error{Kind: calcom.KindAuth, Message: "Invalid API key"},
			contains: []string{"CAL_API_KEY", "(upstream: Invalid API key)"},
		},
		{
			name:     "validation fields",
			op:       OpCreateBooking,
			err:      &calcom.Error{Kind: calcom.KindValidation, Fields: []string{"attendee_email"}},
			contains: []string{"invalid attendee email"},
		},
		{
			name:      "not found booking",
			op:        OpCancelBooking,
			bookingID: 12345,
			err:       &calcom.Error{Kind: calcom.KindNotFound, Message: "Booking not found"},
			contains:  []string{"No booking found with id 12345.", "(upstream: Booking not found)"},
		},
		{
			name:     "rate limit",
			op:       OpListEventTypes,
			err:      &calcom.Error{Kind: calcom.KindRateLimit},
			contains: []string{"rate limiting"},
		},
		{
			name:     "mutation timeout",
			op:       OpCreateBooking,
			err:      &calcom.Error{Kind: calcom.KindUpstream, Timeout: true},
			contains: []string{"may or may not have gone through"},
		},
		{
			name:     "read timeout",
			op:       OpListBookings,
			err:      &calcom.Error{Kind: calcom.KindUpstream, Timeout: true},
			contains: []string{"timed out."},
		},
		{
			name:     "plain error",
			op:       OpListBookings,
			err:      errors.New("boom"),
			contains: []string{"Something went wrong: boom."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Error(tt.op, tt.bookingID, tt.err)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Error() = %q, want it to contain %q", got, want)
				}
			}
		})
	}
}

func TestSummarizeSlots(t *testing.T) {
	f := testFormatter()
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, la)
	q := calcom.AvailabilityQuery{EventTypeID: 1, From: day, To: day.AddDate(0, 0, 1)}

	if got := f.SummarizeSlots("30 Min Meeting", q, nil); got != "No open slots for 30 Min Meeting tomorrow." {
		t.Errorf("empty: %q", got)
	}

	var slots []calcom.Slot
	for i := 0; i < maxListedSlots+3; i++ {
		slots = append(slots, calcom.Slot{Start: day.Add(time.Duration(8*60+15*i) * time.Minute)})
	}
	got := f.SummarizeSlots("", q, slots)
	if !strings.HasPrefix(got, "Open slots for event type #1 tomorrow (America/Los_Angeles):") {
		t.Errorf("header: %q", got)
	}
	if !strings.Contains(got, "- tomorrow 8:00 AM") || !strings.HasSuffix(got, "…and 3 more.") {
		t.Errorf("body: %q", got)
	}
}

func TestSummarizeEventTypes(t *testing.T) {
	got := testFormatter().SummarizeEventTypes([]calcom.EventType{
		{ID: 1, Title: "30 Min Meeting", Slug: "30min", Length: 30},
		{ID: 4, Title: "Secret", Slug: "secret", Length: 15, Hidden: true},
	})
	want := "You have 2 event types:\n- #1 30 Min Meeting (30 min, /30min)\n- #4 Secret (15 min, /secret) [hidden]"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}
