package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"calassist/internal/config"
	"calassist/internal/dispatch"
	"calassist/internal/observability"
)

// echoHandler replies with the utterance and records which conversations
// it saw.
type echoHandler struct {
	mu    sync.Mutex
	convs map[string]int
}

func (h *echoHandler) Handle(_ context.Context, conv *dispatch.Conversation, utterance string) dispatch.Reply {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.convs == nil {
		h.convs = map[string]int{}
	}
	h.convs[conv.ID]++
	return dispatch.Reply{Text: "echo: " + utterance, State: conv.State()}
}

func newTestServer(t *testing.T, tokens ...string) (*httptest.Server, *echoHandler, *observability.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	h := &echoHandler{}
	s := New(Options{
		Handler:  h,
		Tokens:   tokens,
		Version:  "test",
		Metrics:  metrics,
		Gatherer: reg,
		Status: StatusResponse{
			Classifier: "rules",
			Timezone:   "America/Los_Angeles",
			Credentials: []config.CredentialStatus{
				{Name: "CAL_API_KEY", Present: true, Required: true},
			},
		},
	})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, h, metrics
}

// TestHealthEndpoint tests the /health endpoint
func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "ok" || body.Version != "test" {
		t.Errorf("body = %+v", body)
	}
}

// TestAuthMiddleware tests Bearer token authentication
func TestAuthMiddleware(t *testing.T) {
	srv, _, _ := newTestServer(t, "valid-token")

	tests := []struct {
		name           string
		path           string
		authHeader     string
		expectedStatus int
	}{
		{"Valid token", "/status", "Bearer valid-token", http.StatusOK},
		{"Query token", "/status?token=valid-token", "", http.StatusOK},
		{"Invalid token", "/status", "Bearer invalid-token", http.StatusUnauthorized},
		{"Missing auth header", "/status", "", http.StatusUnauthorized},
		{"Invalid format", "/status", "InvalidFormat", http.StatusUnauthorized},
		{"Metrics need auth", "/metrics", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, resp.StatusCode)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	var body StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Classifier != "rules" || body.Version != "test" || len(body.Credentials) != 1 || !body.Credentials[0].Present {
		t.Errorf("body = %+v", body)
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsOutgoing {
	t.Helper()
	var out wsOutgoing
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return out
}

func TestWebSocketConversation(t *testing.T) {
	srv, h, _ := newTestServer(t, "tok")
	conn := dial(t, srv, "?token=tok")

	ready := readFrame(t, conn)
	if ready.Type != msgReady || ready.ConversationID == "" {
		t.Fatalf("first frame = %+v", ready)
	}

	for _, text := range []string{"one", "two", "three"} {
		if err := conn.WriteJSON(wsIncoming{Type: msgUserMessage, Content: text}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for _, want := range []string{"echo: one", "echo: two", "echo: three"} {
		out := readFrame(t, conn)
		if out.Type != msgReply || out.Reply == nil || out.Reply.Text != want {
			t.Fatalf("frame = %+v, want reply %q", out, want)
		}
		if out.ConversationID != ready.ConversationID {
			t.Errorf("conversation id changed: %s", out.ConversationID)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.convs) != 1 || h.convs[ready.ConversationID] != 3 {
		t.Errorf("conversations seen = %v", h.convs)
	}
}

func TestWebSocketBadFrames(t *testing.T) {
	srv, _, _ := newTestServer(t)
	conn := dial(t, srv, "")
	readFrame(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if out := readFrame(t, conn); out.Type != msgError || !strings.Contains(out.Message, "invalid JSON") {
		t.Errorf("frame = %+v", out)
	}

	if err := conn.WriteJSON(wsIncoming{Type: "shout"}); err != nil {
		t.Fatal(err)
	}
	if out := readFrame(t, conn); out.Type != msgError || !strings.Contains(out.Message, "unknown message type") {
		t.Errorf("frame = %+v", out)
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	srv, _, _ := newTestServer(t, "tok")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("resp = %v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, metrics := newTestServer(t)
	metrics.ObserveTurn("idle")

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `calassist_dispatcher_turns_total{state="idle"} 1`) {
		t.Errorf("metrics output missing turn counter:\n%s", buf.String())
	}
}
