package calcom

import (
	"context"
	"net/http"
	"strings"
	"unicode"
)

type eventTypeWire struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Length      int    `json:"length"`
	Description string `json:"description"`
	Hidden      bool   `json:"hidden"`
}

func (w eventTypeWire) toEventType() EventType {
	return EventType{
		ID:          w.ID,
		Title:       w.Title,
		Slug:        w.Slug,
		Length:      w.Length,
		Description: w.Description,
		Hidden:      w.Hidden,
	}
}

// v1 uses snake_case envelopes; some deployments answer in camelCase.
type eventTypesResponse struct {
	EventTypes      []eventTypeWire `json:"event_types"`
	EventTypesCamel []eventTypeWire `json:"eventTypes"`
}

type eventTypeResponse struct {
	EventType      *eventTypeWire `json:"event_type"`
	EventTypeCamel *eventTypeWire `json:"eventType"`
}

// ListEventTypes returns the event types of the account behind the API key.
func (c *Client) ListEventTypes(ctx context.Context) ([]EventType, error) {
	const op = "list_event_types"

	var resp eventTypesResponse
	if err := c.do(ctx, op, http.MethodGet, "event-types", nil, nil, &resp); err != nil {
		return nil, err
	}
	wire := resp.EventTypes
	if len(wire) == 0 {
		wire = resp.EventTypesCamel
	}
	out := make([]EventType, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toEventType())
	}
	return out, nil
}

type createEventTypeBody struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Length      int    `json:"length"`
	Description string `json:"description"`
	Hidden      bool   `json:"hidden"`
}

// CreateEventType creates a new event type. One request, no retry.
func (c *Client) CreateEventType(ctx context.Context, req EventTypeRequest) (*EventType, error) {
	const op = "create_event_type"

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalid(op, "title", "title is required")
	}
	if req.Length <= 0 {
		return nil, invalid(op, "duration", "duration must be greater than zero minutes")
	}
	slug := req.Slug
	if slug == "" {
		slug = Slugify(title)
	}
	if slug == "" {
		return nil, invalid(op, "title", "title must contain letters or digits")
	}

	body := createEventTypeBody{
		Title:       title,
		Slug:        slug,
		Length:      req.Length,
		Description: req.Description,
		Hidden:      req.Hidden,
	}
	var resp eventTypeResponse
	if err := c.do(ctx, op, http.MethodPost, "event-types", nil, body, &resp); err != nil {
		return nil, err
	}
	w := resp.EventType
	if w == nil {
		w = resp.EventTypeCamel
	}
	if w == nil {
		return nil, &Error{Kind: KindUpstream, Op: op, Message: "response did not include the created event type"}
	}
	et := w.toEventType()
	return &et, nil
}

// Slugify turns a title into a URL fragment: "30 Min Meeting" -> "30-min-meeting".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
