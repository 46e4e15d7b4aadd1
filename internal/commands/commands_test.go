package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"calassist/internal/dispatch"
)

type recordingHandler struct {
	convs map[string]bool
	got   []string
}

func (h *recordingHandler) Handle(_ context.Context, conv *dispatch.Conversation, utterance string) dispatch.Reply {
	h.convs[conv.ID] = true
	h.got = append(h.got, utterance)
	return dispatch.Reply{Text: "echo: " + utterance}
}

func TestRunREPL(t *testing.T) {
	h := &recordingHandler{convs: map[string]bool{}}
	in := strings.NewReader("list my bookings\n\n  /reset \nyes\n/quit\nnever read\n")
	var out bytes.Buffer

	if err := runREPL(context.Background(), h, in, &out, false); err != nil {
		t.Fatalf("runREPL: %v", err)
	}
	if len(h.got) != 2 || h.got[0] != "list my bookings" || h.got[1] != "yes" {
		t.Errorf("handled %q", h.got)
	}
	if len(h.convs) != 2 {
		t.Errorf("got %d conversations, want 2 after /reset", len(h.convs))
	}
	if !strings.Contains(out.String(), "echo: list my bookings\n") {
		t.Errorf("output = %q", out.String())
	}
	if strings.Contains(out.String(), "> ") {
		t.Error("prompt printed in non-interactive mode")
	}
}

func TestRunREPL_EOF(t *testing.T) {
	h := &recordingHandler{convs: map[string]bool{}}
	var out bytes.Buffer
	if err := runREPL(context.Background(), h, strings.NewReader("hello"), &out, true); err != nil {
		t.Fatalf("runREPL: %v", err)
	}
	if len(h.got) != 1 || !strings.Contains(out.String(), "> ") {
		t.Errorf("got %q, output %q", h.got, out.String())
	}
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:8787", true},
		{"localhost:8787", true},
		{"[::1]:8787", true},
		{"0.0.0.0:8787", false},
		{":8787", false},
		{"10.1.2.3:80", false},
		{"bad", false},
	}
	for _, tt := range tests {
		if got := isLoopback(tt.addr); got != tt.want {
			t.Errorf("isLoopback(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	VersionCmd.SetOut(&out)
	VersionCmd.Run(VersionCmd, nil)
	if !strings.HasPrefix(out.String(), "calassist version dev") {
		t.Errorf("version output = %q", out.String())
	}
}

// isolateConfig points config loading at an empty temp dir and clears the
// keys the test depends on.
func isolateConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	prevEnv, prevDir := envFile, configPath
	envFile, configPath = filepath.Join(dir, ".env"), dir
	t.Cleanup(func() { envFile, configPath = prevEnv, prevDir })
	for _, k := range []string{"CAL_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "LOG_FILE", "CALASSIST_TIMEZONE"} {
		t.Setenv(k, "")
	}
}

func TestNewApp_MissingLLMKeyFailsAtFirstTurn(t *testing.T) {
	for _, tt := range []struct {
		backend, key string
	}{
		{"anthropic", "ANTHROPIC_API_KEY"},
		{"gemini", "GEMINI_API_KEY"},
	} {
		t.Run(tt.backend, func(t *testing.T) {
			isolateConfig(t)
			t.Setenv("CALASSIST_CLASSIFIER", tt.backend)

			a, err := newApp(context.Background(), appOptions{quietLog: true, needClassifier: true})
			if err != nil {
				t.Fatalf("newApp: %v", err)
			}
			defer a.Close()

			if st := a.status(); st.Classifier != tt.backend {
				t.Errorf("status classifier = %q", st.Classifier)
			}
			reply := a.dispatcher.Handle(context.Background(), dispatch.NewConversation(), "list my event types")
			if !strings.Contains(reply.Text, tt.key) || reply.State != dispatch.StateIdle || reply.Executed {
				t.Errorf("reply = %+v", reply)
			}
		})
	}
}
