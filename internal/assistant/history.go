package assistant

import (
	anthropic "github.com/anthropics/anthropic-sdk-go"

	"calassist/internal/dispatch"
)

// messages converts the conversation history plus the new utterance into
// API messages. The history already ends with the utterance when the
// dispatcher recorded it first; it is not sent twice.
func messages(req dispatch.Request) []anthropic.BetaMessageParam {
	history := req.History
	if n := len(history); n > 0 && history[n-1].Role == dispatch.RoleUser && history[n-1].Text == req.Utterance {
		history = history[:n-1]
	}

	var out []anthropic.BetaMessageParam
	for _, t := range history {
		if t.Text == "" {
			continue
		}
		switch t.Role {
		case dispatch.RoleUser:
			out = append(out, anthropic.NewBetaUserMessage(anthropic.NewBetaTextBlock(t.Text)))
		case dispatch.RoleAssistant:
			// The API wants the first message from the user.
			if len(out) == 0 {
				continue
			}
			out = append(out, anthropic.BetaMessageParam{
				Role:    anthropic.BetaMessageParamRoleAssistant,
				Content: []anthropic.BetaContentBlockParamUnion{anthropic.NewBetaTextBlock(t.Text)},
			})
		}
	}
	return append(out, anthropic.NewBetaUserMessage(anthropic.NewBetaTextBlock(req.Utterance)))
}
