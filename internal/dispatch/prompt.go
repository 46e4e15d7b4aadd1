package dispatch

import (
	"fmt"
	"strings"
	"time"
)

// BuildPrompt constructs the system prompt for hosted classifiers.
func BuildPrompt(req Request) string {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	now := req.Now.In(loc)

	draft := "None."
	if req.Draft != "" {
		draft = fmt.Sprintf("The user is answering a follow-up question for %s. If the message only adds details, call %s with those details.", req.Draft, req.Draft)
	}

	var names []string
	for _, t := range Tools {
		names = append(names, t.Name)
	}

	return fmt.Sprintf(`You route scheduling requests for a Cal.com account to tools.

Current time: %s (%s, timezone %s)
Conversation in progress: %s

Rules:
1. Call exactly one of these tools when the user asks for a scheduling action: %s.
2. Call the tool even if details are missing. Leave unknown fields empty; never invent emails, ids or times.
3. Write times as YYYY-MM-DDTHH:MM in the user's timezone, dates as YYYY-MM-DD. Resolve words like "tomorrow" against the current time.
4. Durations are in minutes.
5. If the user is only chatting or asking something unrelated, answer briefly in text and call no tool.
6. Tools do not run anything; the application asks the user to confirm before making changes.`,
		now.Format("2006-01-02 15:04"), now.Format("Monday"), loc.String(), draft, strings.Join(names, ", "))
}
