package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"calassist/internal/config"
	"calassist/internal/dispatch"
)

// scriptedHandler answers every turn with the same reply and records input.
type scriptedHandler struct {
	reply dispatch.Reply
	got   []string
}

func (h *scriptedHandler) Handle(_ context.Context, conv *dispatch.Conversation, utterance string) dispatch.Reply {
	h.got = append(h.got, utterance)
	return h.reply
}

func newTestModel(h Handler) Model {
	m := NewModel(Options{
		Handler: h,
		Status: Status{
			Classifier: "rules",
			Timezone:   "America/Los_Angeles",
			Credentials: []config.CredentialStatus{
				{Name: "CAL_API_KEY", Present: true, Required: true},
				{Name: "ANTHROPIC_API_KEY"},
			},
		},
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model)
}

// send submits text and runs the resulting turn command until its reply
// arrives.
func send(t *testing.T, m Model, text string) (Model, replyMsg) {
	t.Helper()
	m.input.SetValue(text)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if !m.busy {
		t.Fatal("model should be busy while the turn runs")
	}
	if cmd == nil {
		t.Fatal("expected a command for the turn")
	}
	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatalf("expected a batch, got %T", cmd())
	}
	for _, c := range batch {
		if c == nil {
			continue
		}
		if r, ok := c().(replyMsg); ok {
			return m, r
		}
	}
	t.Fatal("no reply produced")
	return m, replyMsg{}
}

func TestModel_Turn(t *testing.T) {
	h := &scriptedHandler{reply: dispatch.Reply{Text: "You have 1 event type", State: dispatch.StateIdle}}
	m := newTestModel(h)

	m, r := send(t, m, "  show my event types ")
	if len(h.got) != 1 || h.got[0] != "show my event types" {
		t.Fatalf("handler got %q", h.got)
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}

	updated, _ := m.Update(r)
	m = updated.(Model)
	if m.busy {
		t.Error("still busy after reply")
	}
	last := m.lines[len(m.lines)-1]
	if last.role != dispatch.RoleAssistant || last.text != "You have 1 event type" {
		t.Errorf("last line = %+v", last)
	}
	if !strings.Contains(m.View(), "You have 1 event type") {
		t.Error("reply not rendered")
	}
}

func TestModel_BusyIgnoresSend(t *testing.T) {
	h := &scriptedHandler{reply: dispatch.Reply{Text: "ok"}}
	m := newTestModel(h)
	m, _ = send(t, m, "first")

	m.input.SetValue("second")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if cmd != nil {
		t.Error("send while busy should not start a turn")
	}
	if m.input.Value() != "second" {
		t.Errorf("input = %q, want it kept", m.input.Value())
	}
}

func TestModel_EmptyInput(t *testing.T) {
	m := newTestModel(&scriptedHandler{})
	m.input.SetValue("   ")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || updated.(Model).busy {
		t.Error("blank input should not start a turn")
	}
}

func TestModel_PanelShowsPending(t *testing.T) {
	m := newTestModel(&scriptedHandler{})
	updated, _ := m.Update(replyMsg{
		reply:   dispatch.Reply{Text: "Cancel booking #8 — confirm?", State: dispatch.StateAwaitingConfirmation},
		pending: "Cancel booking #8",
	})
	m = updated.(Model)

	view := m.View()
	for _, want := range []string{"awaiting confirmation", "Cancel booking #8", "CAL_API_KEY", "rules"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	m = updated.(Model)
	if m.pending != "" || m.state != dispatch.StateIdle || len(m.lines) != 1 {
		t.Errorf("reset left state %q pending %q lines %d", m.state, m.pending, len(m.lines))
	}
}

func TestModel_ErrorStatus(t *testing.T) {
	m := newTestModel(&scriptedHandler{})
	updated, _ := m.Update(replyMsg{reply: dispatch.Reply{Text: "Cal.com rejected the API key", ErrorKind: "auth"}})
	m = updated.(Model)
	if !strings.Contains(m.View(), "last request failed: auth") {
		t.Error("error status not shown")
	}
}
