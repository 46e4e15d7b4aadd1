package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"calassist/internal/dispatch"
)

const toolUseResponse = `{
  "id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
  "content": [{"type": "tool_use", "id": "toolu_1", "name": "create_booking",
    "input": {"event_type": "Deep Dive", "start": "2026-10-15T10:00", "attendee_name": "John"}}],
  "stop_reason": "tool_use", "stop_sequence": null,
  "usage": {"input_tokens": 10, "output_tokens": 5}
}`

func textResponse(text string) string {
	b, _ := json.Marshal(map[string]any{
		"id": "msg_2", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"stop_reason": "end_turn", "stop_sequence": nil,
		"usage": map[string]int{"input_tokens": 10, "output_tokens": 5},
	})
	return string(b)
}

// fakeMessagesAPI answers with the given bodies in order, repeating the last.
func fakeMessagesAPI(t *testing.T, bodies ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		n := int(calls.Add(1)) - 1
		if n >= len(bodies) {
			n = len(bodies) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, bodies[n])
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClassifier(t *testing.T, baseURL string) *Classifier {
	t.Helper()
	c, err := New(Options{APIKey: "sk-test", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func testRequest(utterance string) dispatch.Request {
	loc, _ := time.LoadLocation("America/Los_Angeles")
	return dispatch.Request{
		Utterance: utterance,
		Now:       time.Date(2026, 10, 14, 9, 0, 0, 0, loc),
		Location:  loc,
	}
}

func TestClassify_ToolCall(t *testing.T) {
	srv, calls := fakeMessagesAPI(t, toolUseResponse, textResponse("On it."))
	c := newTestClassifier(t, srv.URL)

	req := testRequest("book Deep Dive with John tomorrow at 10")
	intent, err := c.Classify(context.Background(), req)
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if intent.Operation != dispatch.OpCreateBooking {
		t.Errorf("Operation = %s, want create_booking", intent.Operation)
	}
	if intent.Params.EventTypeHint != "Deep Dive" || intent.Params.AttendeeName != "John" {
		t.Errorf("Params = %+v", intent.Params)
	}
	want := time.Date(2026, 10, 15, 10, 0, 0, 0, req.Location)
	if !intent.Params.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", intent.Params.Start, want)
	}
	if calls.Load() < 1 {
		t.Error("expected the messages endpoint to be called")
	}
}

func TestClassify_NoToolCall(t *testing.T) {
	srv, _ := fakeMessagesAPI(t, textResponse("Hi! I can help with your calendar."))
	c := newTestClassifier(t, srv.URL)

	intent, err := c.Classify(context.Background(), testRequest("hello"))
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if intent.Operation != dispatch.OpNone || intent.Reply != "Hi! I can help with your calendar." {
		t.Errorf("intent = %+v", intent)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestMessages(t *testing.T) {
	req := testRequest("yes")
	req.History = []dispatch.Turn{
		{Role: dispatch.RoleAssistant, Text: "welcome"},
		{Role: dispatch.RoleUser, Text: "book a call"},
		{Role: dispatch.RoleAssistant, Text: "With whom?"},
		{Role: dispatch.RoleUser, Text: "yes"},
	}
	got := messages(req)
	if len(got) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(got))
	}
	if got[0].Role != anthropic.BetaMessageParamRoleUser || got[1].Role != anthropic.BetaMessageParamRoleAssistant {
		t.Errorf("roles = %s, %s", got[0].Role, got[1].Role)
	}
}

func TestToolCaptureKeepsFirst(t *testing.T) {
	var c toolCapture
	c.record("cancel_booking", json.RawMessage(`{"booking_id":1}`))
	c.record("list_bookings", nil)
	name, args, ok := c.first()
	if !ok || name != "cancel_booking" || string(args) != `{"booking_id":1}` {
		t.Errorf("first() = %q, %s, %v", name, args, ok)
	}
}

func TestBuildTools(t *testing.T) {
	tools, err := buildTools(&toolCapture{})
	if err != nil {
		t.Fatalf("buildTools() error: %v", err)
	}
	if len(tools) != len(dispatch.Operations) {
		t.Errorf("len(tools) = %d, want %d", len(tools), len(dispatch.Operations))
	}
}
