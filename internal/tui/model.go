package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"calassist/internal/config"
	"calassist/internal/dispatch"
)

const (
	panelWidth         = 34
	defaultTurnTimeout = 90 * time.Second
	greeting           = "Hi! Ask me to check availability, book, list, cancel or reschedule meetings."
)

// Handler processes one chat turn. *dispatch.Dispatcher satisfies it.
type Handler interface {
	Handle(ctx context.Context, conv *dispatch.Conversation, utterance string) dispatch.Reply
}

// Status is the static part of the side panel.
type Status struct {
	Classifier  string
	Timezone    string
	Credentials []config.CredentialStatus
}

// Options configures the chat TUI.
type Options struct {
	Handler     Handler
	Status      Status
	TurnTimeout time.Duration
	Logger      *zap.Logger
}

type line struct {
	role dispatch.Role
	text string
}

// replyMsg carries the outcome of a turn run off the UI goroutine.
type replyMsg struct {
	reply   dispatch.Reply
	pending string
	elapsed time.Duration
}

// Model is the chat TUI model. The conversation is only touched by the
// command running the current turn; View reads the snapshot fields.
type Model struct {
	opts     Options
	conv     *dispatch.Conversation
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model

	lines     []line
	busy      bool
	showPanel bool
	ready     bool
	width     int
	height    int

	state     dispatch.State
	pending   string
	statusMsg string
	lastTook  time.Duration
}

// NewModel creates the initial TUI model with a fresh conversation.
func NewModel(opts Options) Model {
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = defaultTurnTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ti := textinput.New()
	ti.Placeholder = "Book a 30 minute call tomorrow at 10am with ana@example.com"
	ti.CharLimit = 500
	ti.Prompt = "› "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusWarnStyle

	return Model{
		opts:      opts,
		conv:      dispatch.NewConversation(),
		input:     ti,
		spinner:   sp,
		help:      help.New(),
		showPanel: true,
		state:     dispatch.StateIdle,
		lines:     []line{{role: dispatch.RoleAssistant, text: greeting}},
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case replyMsg:
		m.busy = false
		m.state = msg.reply.State
		m.pending = msg.pending
		m.lastTook = msg.elapsed
		m.statusMsg = ""
		if msg.reply.ErrorKind != "" {
			m.statusMsg = "last request failed: " + string(msg.reply.ErrorKind)
		}
		m.lines = append(m.lines, line{role: dispatch.RoleAssistant, text: msg.reply.Text})
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.resize()
			return m, nil

		case key.Matches(msg, keys.Panel):
			m.showPanel = !m.showPanel
			m.resize()
			return m, nil

		case key.Matches(msg, keys.Scroll):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd

		case key.Matches(msg, keys.Reset):
			if m.busy {
				return m, nil
			}
			m.conv = dispatch.NewConversation()
			m.state = dispatch.StateIdle
			m.pending = ""
			m.statusMsg = "started a new conversation"
			m.lines = []line{{role: dispatch.RoleAssistant, text: greeting}}
			m.refresh()
			return m, nil

		case key.Matches(msg, keys.Send):
			// One turn at a time; input typed while busy stays in the box.
			if m.busy {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.lines = append(m.lines, line{role: dispatch.RoleUser, text: text})
			m.busy = true
			m.statusMsg = ""
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.runTurn(text))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// runTurn hands the utterance to the dispatcher off the UI goroutine.
func (m Model) runTurn(text string) tea.Cmd {
	conv, h, timeout, logger := m.conv, m.opts.Handler, m.opts.TurnTimeout, m.opts.Logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		reply := h.Handle(ctx, conv, text)
		msg := replyMsg{reply: reply, elapsed: time.Since(start)}
		if p := conv.Pending(); p != nil {
			msg.pending = p.Summary
		}
		logger.Debug("tui turn",
			zap.String("conversation", conv.ID),
			zap.String("state", string(reply.State)),
			zap.Duration("elapsed", msg.elapsed))
		return msg
	}
}

// resize lays out the transcript, input and panel for the current window.
func (m *Model) resize() {
	if m.width == 0 {
		return
	}
	innerWidth := m.width - 4
	innerHeight := m.height - 2

	chatWidth := innerWidth
	if m.showPanel {
		chatWidth -= panelWidth + 2
	}
	helpHeight := 2
	if m.help.ShowAll {
		helpHeight = 3
	}
	// header(1) + gap(1) + input(3) + status(1) + help
	vpHeight := max(3, innerHeight-6-helpHeight)

	if !m.ready {
		m.viewport = viewport.New(chatWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = chatWidth
		m.viewport.Height = vpHeight
	}
	m.input.Width = max(10, chatWidth-6)
	m.help.Width = innerWidth
	m.refresh()
}

// refresh re-renders the transcript into the viewport and follows the tail.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTranscript(m.lines, m.viewport.Width))
	m.viewport.GotoBottom()
}

func renderTranscript(lines []line, width int) string {
	body := lipgloss.NewStyle().Width(max(10, width-2))
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if l.role == dispatch.RoleUser {
			b.WriteString(userStyle.Render("you"))
		} else {
			b.WriteString(assistantStyle.Render("assistant"))
		}
		b.WriteString("\n")
		b.WriteString(body.Render(l.text))
	}
	return b.String()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	chat := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		inputStyle.Width(m.viewport.Width-2).Render(m.input.View()),
	)
	if m.showPanel {
		chat = lipgloss.JoinHorizontal(lipgloss.Top,
			chat,
			lipgloss.NewStyle().MarginLeft(2).Render(m.renderPanel(m.viewport.Height+3)),
		)
	}
	b.WriteString(chat)

	b.WriteString("\n")
	switch {
	case m.busy:
		b.WriteString(m.spinner.View() + hintStyle.Render(" working..."))
	case m.statusMsg != "" && strings.HasPrefix(m.statusMsg, "last request failed"):
		b.WriteString(statusErrorStyle.Render("  " + m.statusMsg))
	case m.statusMsg != "":
		b.WriteString(statusOkStyle.Render("  " + m.statusMsg))
	case m.lastTook > 0:
		b.WriteString(hintStyle.Render(fmt.Sprintf("  last turn took %s", m.lastTook.Round(10*time.Millisecond))))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help.View(keys)))
	return appStyle.Render(b.String())
}

func (m Model) renderHeader() string {
	title := titleStyle.Render(" ◷ calassist ")
	info := lipgloss.NewStyle().Foreground(mutedColor).
		Render(fmt.Sprintf("Backend: %s | TZ: %s", m.opts.Status.Classifier, m.opts.Status.Timezone))
	gap := strings.Repeat(" ", max(0, m.width-4-lipgloss.Width(title)-lipgloss.Width(info)))
	return title + gap + info
}

// renderPanel shows credential presence, the active backend and what the
// dispatcher is waiting for.
func (m Model) renderPanel(height int) string {
	var b strings.Builder

	b.WriteString(panelLabelStyle.Render("Credentials"))
	b.WriteString("\n")
	for _, c := range m.opts.Status.Credentials {
		switch {
		case c.Present:
			b.WriteString(statusOkStyle.Render("✓ " + c.Name))
		case c.Required:
			b.WriteString(statusErrorStyle.Render("✗ " + c.Name))
		default:
			b.WriteString(hintStyle.Render("- " + c.Name))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(panelLabelStyle.Render("Backend  "))
	b.WriteString(panelValueStyle.Render(m.opts.Status.Classifier))
	b.WriteString("\n")
	b.WriteString(panelLabelStyle.Render("Timezone "))
	b.WriteString(panelValueStyle.Render(m.opts.Status.Timezone))
	b.WriteString("\n\n")

	b.WriteString(panelLabelStyle.Render("State"))
	b.WriteString("\n")
	b.WriteString(stateLabel(m.state))
	if m.pending != "" {
		b.WriteString("\n\n")
		b.WriteString(panelLabelStyle.Render("Pending"))
		b.WriteString("\n")
		b.WriteString(pendingStyle.Width(panelWidth - 4).Render(m.pending))
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("reply yes or no"))
	}

	return panelBorderStyle.Width(panelWidth - 2).Height(max(1, height-2)).Render(b.String())
}

func stateLabel(s dispatch.State) string {
	switch s {
	case dispatch.StateAwaitingClarification:
		return statusWarnStyle.Render("needs details")
	case dispatch.StateAwaitingConfirmation:
		return statusWarnStyle.Render("awaiting confirmation")
	default:
		return statusOkStyle.Render("idle")
	}
}

// Run starts the TUI application.
func Run(opts Options) error {
	p := tea.NewProgram(NewModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
