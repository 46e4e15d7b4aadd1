package calcom

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

type staticKey string

func (k staticKey) CalAPIKey() string { return string(k) }

var (
	la, _   = time.LoadLocation("America/Los_Angeles")
	fixedAt = time.Date(2026, 10, 14, 9, 0, 0, 0, la)
)

// newTestClient starts an httptest server and a client pointed at it.
func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL+"/v1", staticKey("test-key"),
		WithLocation(la),
		WithClock(func() time.Time { return fixedAt }),
	)
	return c, &calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListEventTypes(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/event-types" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("apiKey"); got != "test-key" {
			t.Errorf("apiKey query = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"event_types": []map[string]any{
				{"id": 1, "title": "30 Min Meeting", "slug": "30min", "length": 30},
				{"id": 2, "title": "Deep Dive", "slug": "deep-dive", "length": 60},
			},
		})
	})

	got, err := c.ListEventTypes(context.Background())
	if err != nil {
		t.Fatalf("ListEventTypes() error: %v", err)
	}
	want := []EventType{
		{ID: 1, Title: "30 Min Meeting", Slug: "30min", Length: 30},
		{ID: 2, Title: "Deep Dive", Slug: "deep-dive", Length: 60},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListEventTypes() = %+v, want %+v", got, want)
	}

	// Reads are idempotent: a second call with no mutation in between is identical.
	again, err := c.ListEventTypes(context.Background())
	if err != nil || !reflect.DeepEqual(got, again) {
		t.Errorf("second ListEventTypes() = %+v, %v", again, err)
	}
}

func TestListEventTypes_CamelCaseEnvelope(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"eventTypes": []map[string]any{{"id": 7, "title": "Intro", "slug": "intro", "length": 15}},
		})
	})
	got, err := c.ListEventTypes(context.Background())
	if err != nil || len(got) != 1 || got[0].ID != 7 {
		t.Fatalf("ListEventTypes() = %+v, %v", got, err)
	}
}

func TestMissingKeyIsAuthErrorWithoutRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticKey(""))
	_, err := c.ListEventTypes(context.Background())
	if KindOf(err) != KindAuth {
		t.Fatalf("KindOf(err) = %q, want auth (err=%v)", KindOf(err), err)
	}
	if calls != 0 {
		t.Errorf("made %d requests without a key, want 0", calls)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		kind    Kind
		message string
	}{
		{http.StatusUnauthorized, `{"message":"Your API key is not valid."}`, KindAuth, "Your API key is not valid."},
		{http.StatusForbidden, `{"error":"forbidden"}`, KindAuth, "forbidden"},
		{http.StatusBadRequest, `{"message":"invalid_type in 'start'"}`, KindValidation, "invalid_type in 'start'"},
		{http.StatusNotFound, `{"message":"Booking not found"}`, KindNotFound, "Booking not found"},
		{http.StatusTooManyRequests, `slow down`, KindRateLimit, "slow down"},
		{http.StatusInternalServerError, ``, KindUpstream, "Internal Server Error"},
		{http.StatusBadGateway, `{"error":{"message":"no healthy upstream"}}`, KindUpstream, "no healthy upstream"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, err := c.ListEventTypes(context.Background())
			ge, ok := AsError(err)
			if !ok {
				t.Fatalf("error %v is not a gateway error", err)
			}
			if ge.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", ge.Kind, tt.kind)
			}
			if ge.Status != tt.status {
				t.Errorf("Status = %d, want %d", ge.Status, tt.status)
			}
			if ge.Message != tt.message {
				t.Errorf("Message = %q, want %q", ge.Message, tt.message)
			}
		})
	}
}

func TestTimeoutIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticKey("k"), WithTimeout(50*time.Millisecond))
	_, err := c.ListEventTypes(context.Background())
	ge, ok := AsError(err)
	if !ok || ge.Kind != KindUpstream || !ge.Timeout {
		t.Fatalf("err = %#v, want upstream timeout", err)
	}
}

func TestTransportErrorHidesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewClient(addr+"/v1/", staticKey("sk_live_SECRET123"), WithTimeout(time.Second))
	_, err := c.ListEventTypes(context.Background())
	ge, ok := AsError(err)
	if !ok || ge.Kind != KindUpstream {
		t.Fatalf("err = %#v, want upstream error", err)
	}
	if strings.Contains(err.Error(), "SECRET123") || strings.Contains(ge.Message, "apiKey") {
		t.Errorf("API key leaked: %q", err.Error())
	}
	if !strings.Contains(ge.Message, "/v1/event-types") {
		t.Errorf("message lost the endpoint: %q", ge.Message)
	}
}

func TestDiagnosticTruncatesOnRuneBoundary(t *testing.T) {
	body := []byte(strings.Repeat("a", 199) + strings.Repeat("é", 10))
	got := diagnostic(body, http.StatusBadGateway)
	if !utf8.ValidString(got) {
		t.Fatalf("diagnostic split a rune: %q", got)
	}
	if want := strings.Repeat("a", 199) + "..."; got != want {
		t.Errorf("diagnostic = %q, want %q", got, want)
	}
	if got := diagnostic([]byte("short"), http.StatusBadGateway); got != "short" {
		t.Errorf("short body = %q", got)
	}
}

func TestCreateEventType(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/event-types" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body createEventTypeBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Title != "Office Hours" || body.Slug != "office-hours" || body.Length != 45 {
			t.Errorf("body = %+v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"event_type": map[string]any{"id": 99, "title": body.Title, "slug": body.Slug, "length": body.Length},
		})
	})

	et, err := c.CreateEventType(context.Background(), EventTypeRequest{Title: "Office Hours", Length: 45})
	if err != nil {
		t.Fatalf("CreateEventType() error: %v", err)
	}
	if et.ID != 99 || et.Slug != "office-hours" {
		t.Errorf("CreateEventType() = %+v", et)
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want exactly 1", *calls)
	}
}

func TestCreateEventType_Validation(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		name  string
		req   EventTypeRequest
		field string
	}{
		{"zero duration", EventTypeRequest{Title: "x", Length: 0}, "duration"},
		{"negative duration", EventTypeRequest{Title: "x", Length: -5}, "duration"},
		{"empty title", EventTypeRequest{Title: "  ", Length: 30}, "title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateEventType(context.Background(), tt.req)
			ge, ok := AsError(err)
			if !ok || ge.Kind != KindValidation || ge.Fields[0] != tt.field {
				t.Errorf("err = %v, want validation on %s", err, tt.field)
			}
		})
	}
	if *calls != 0 {
		t.Errorf("validation failures made %d requests", *calls)
	}
}

func TestListAvailability(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("eventTypeId") != "1" || q.Get("timeZone") != "America/Los_Angeles" {
			t.Errorf("query = %v", q)
		}
		if !strings.HasPrefix(q.Get("startTime"), "2026-10-15T00:00:00") {
			t.Errorf("startTime = %q", q.Get("startTime"))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"slots": map[string]any{
				"2026-10-15": []map[string]string{
					{"time": "2026-10-15T17:00:00Z"},
					{"time": "2026-10-15T16:00:00Z"},
				},
			},
		})
	})

	from := time.Date(2026, 10, 15, 0, 0, 0, 0, la)
	slots, err := c.ListAvailability(context.Background(), AvailabilityQuery{
		EventTypeID: 1, Length: 30, From: from, To: from.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("ListAvailability() error: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("got %d slots, want 2", len(slots))
	}
	if slots[0].Start.Hour() != 9 || slots[0].Start.Location() != la {
		t.Errorf("first slot = %v, want 09:00 in Los Angeles", slots[0].Start)
	}
	if slots[0].End.Sub(slots[0].Start) != 30*time.Minute {
		t.Errorf("slot length = %v", slots[0].End.Sub(slots[0].Start))
	}
}

func TestListAvailability_Validation(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	from := fixedAt.AddDate(0, 0, 2)

	tests := []struct {
		name  string
		q     AvailabilityQuery
		field string
	}{
		{"inverted range", AvailabilityQuery{EventTypeID: 1, From: from, To: from.Add(-time.Hour)}, "date_range"},
		{"unknown zone", AvailabilityQuery{EventTypeID: 1, From: from, To: from, Timezone: "Nowhere/Land"}, "timezone"},
		{"no event type", AvailabilityQuery{From: from, To: from}, "event_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ListAvailability(context.Background(), tt.q)
			ge, ok := AsError(err)
			if !ok || ge.Kind != KindValidation || ge.Fields[0] != tt.field {
				t.Errorf("err = %v, want validation on %s", err, tt.field)
			}
		})
	}
	if *calls != 0 {
		t.Errorf("validation failures made %d requests", *calls)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"30 Min Meeting":     "30-min-meeting",
		"  Office  Hours!! ": "office-hours",
		"Café Chat":          "caf-chat",
		"---":                "",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRateLimiterHonorsContext(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"event_types": []any{}})
	})
	WithRequestsPerMinute(1)(c)

	if _, err := c.ListEventTypes(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.ListEventTypes(ctx)
	if KindOf(err) != KindUpstream {
		t.Fatalf("second call err = %v, want upstream (limiter wait exceeded deadline)", err)
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
}
