package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/toolrunner"

	"calassist/internal/dispatch"
)

const recordedText = "Recorded. The application takes it from here. Do not call another tool; reply with at most one short sentence."

// toolCapture keeps the first tool call of a run. Later calls are ignored.
type toolCapture struct {
	mu   sync.Mutex
	name string
	args json.RawMessage
	set  bool
}

func (c *toolCapture) record(name string, args json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		return
	}
	c.name, c.args, c.set = name, args, true
}

func (c *toolCapture) first() (string, json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name, c.args, c.set
}

// toolText is a convenience helper to return a plain text tool result.
func toolText(s string) anthropic.BetaToolResultBlockParamContentUnion {
	return anthropic.BetaToolResultBlockParamContentUnion{
		OfText: &anthropic.BetaTextBlockParam{Text: s},
	}
}

func captureTool[T any](c *toolCapture, op dispatch.Operation) (anthropic.BetaTool, error) {
	t, err := toolrunner.NewBetaToolFromJSONSchema(
		string(op),
		description(op),
		func(ctx context.Context, input T) (anthropic.BetaToolResultBlockParamContentUnion, error) {
			raw, err := json.Marshal(input)
			if err != nil {
				return toolText("error: " + err.Error()), nil
			}
			c.record(string(op), raw)
			return toolText(recordedText), nil
		},
	)
	if err != nil {
		var zero anthropic.BetaTool
		return zero, fmt.Errorf("%s tool: %w", op, err)
	}
	return t, nil
}

// buildTools constructs one tool per operation, all feeding c.
func buildTools(c *toolCapture) ([]anthropic.BetaTool, error) {
	var tools []anthropic.BetaTool
	var firstErr error
	add := func(t anthropic.BetaTool, err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
		tools = append(tools, t)
	}

	add(captureTool[dispatch.ListEventTypesArgs](c, dispatch.OpListEventTypes))
	add(captureTool[dispatch.CheckAvailabilityArgs](c, dispatch.OpCheckAvailability))
	add(captureTool[dispatch.CreateBookingArgs](c, dispatch.OpCreateBooking))
	add(captureTool[dispatch.ListBookingsArgs](c, dispatch.OpListBookings))
	add(captureTool[dispatch.CancelBookingArgs](c, dispatch.OpCancelBooking))
	add(captureTool[dispatch.RescheduleBookingArgs](c, dispatch.OpRescheduleBooking))
	add(captureTool[dispatch.CreateEventTypeArgs](c, dispatch.OpCreateEventType))

	if firstErr != nil {
		return nil, firstErr
	}
	return tools, nil
}

func description(op dispatch.Operation) string {
	for _, t := range dispatch.Tools {
		if t.Name == string(op) {
			return t.Description
		}
	}
	return ""
}
