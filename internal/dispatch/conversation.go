package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// State is where a conversation sits in the dispatch cycle.
type State string

const (
	StateIdle                  State = "idle"
	StateAwaitingClarification State = "awaiting_clarification"
	StateAwaitingConfirmation  State = "awaiting_confirmation"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Draft is a partially specified request awaiting clarification.
type Draft struct {
	Operation Operation
	Params    Params
	// Missing names the fields still missing or invalid.
	Missing []string
}

// PendingAction is a validated mutating request awaiting confirmation.
// It is single use.
type PendingAction struct {
	Operation Operation
	Summary   string
	action    action
}

// Conversation holds the state of one chat. It is owned by a single
// session and must not be shared between goroutines.
type Conversation struct {
	ID    string
	Turns []Turn

	draft     *Draft
	pending   *PendingAction
	ambiguous int
}

// NewConversation starts an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{ID: uuid.NewString()}
}

// State reports the current dispatch state.
func (c *Conversation) State() State {
	switch {
	case c.pending != nil:
		return StateAwaitingConfirmation
	case c.draft != nil:
		return StateAwaitingClarification
	default:
		return StateIdle
	}
}

// Pending returns the action awaiting confirmation, or nil.
func (c *Conversation) Pending() *PendingAction {
	return c.pending
}

// Draft returns the request awaiting clarification, or nil.
func (c *Conversation) Draft() *Draft {
	return c.draft
}

// Reset drops any draft or pending action.
func (c *Conversation) Reset() {
	c.draft = nil
	c.pending = nil
	c.ambiguous = 0
}

func (c *Conversation) setDraft(d *Draft) {
	c.Reset()
	c.draft = d
}

func (c *Conversation) setPending(p *PendingAction) {
	c.Reset()
	c.pending = p
}

func (c *Conversation) append(role Role, text string, at time.Time) {
	c.Turns = append(c.Turns, Turn{Role: role, Text: text, At: at})
}

// history returns the most recent turns, oldest first.
func (c *Conversation) history(limit int) []Turn {
	turns := c.Turns
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
