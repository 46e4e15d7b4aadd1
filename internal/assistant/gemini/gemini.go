// Package gemini classifies utterances with Gemini function calling.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"calassist/internal/dispatch"
)

const defaultModel = "gemini-1.5-pro"

// Classifier implements dispatch.Classifier with a GenerativeModel.
type Classifier struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// New creates a Classifier. Close releases the underlying client.
func New(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Classifier, error) {
	if apiKey == "" {
		return nil, errors.New("gemini classifier: API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{client: client, model: model, logger: logger}, nil
}

func (c *Classifier) Close() error {
	return c.client.Close()
}

// Classify implements dispatch.Classifier.
func (c *Classifier) Classify(ctx context.Context, req dispatch.Request) (dispatch.Intent, error) {
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(dispatch.BuildPrompt(req)))
	model.Tools = []*genai.Tool{{FunctionDeclarations: Declarations()}}

	cs := model.StartChat()
	cs.History = history(req)

	resp, err := cs.SendMessage(ctx, genai.Text(req.Utterance))
	if err != nil {
		return dispatch.Intent{}, fmt.Errorf("gemini generate error: %w", err)
	}
	return intentFromResponse(resp, req)
}

// intentFromResponse takes the first function call in resp, or the text
// when the model called nothing.
func intentFromResponse(resp *genai.GenerateContentResponse, req dispatch.Request) (dispatch.Intent, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return dispatch.Intent{Operation: dispatch.OpNone}, nil
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return dispatch.Intent{}, fmt.Errorf("encode %s arguments: %w", p.Name, err)
			}
			return dispatch.ToolCall(p.Name, args, req.Location)
		case genai.Text:
			sb.WriteString(string(p))
		}
	}
	return dispatch.Intent{Operation: dispatch.OpNone, Reply: strings.TrimSpace(sb.String())}, nil
}

// history converts prior turns to chat contents, dropping the current
// utterance if the dispatcher already recorded it.
func history(req dispatch.Request) []*genai.Content {
	turns := req.History
	if n := len(turns); n > 0 && turns[n-1].Role == dispatch.RoleUser && turns[n-1].Text == req.Utterance {
		turns = turns[:n-1]
	}
	var out []*genai.Content
	for _, t := range turns {
		if t.Text == "" {
			continue
		}
		role := "user"
		if t.Role == dispatch.RoleAssistant {
			if len(out) == 0 {
				continue
			}
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Text)}})
	}
	return out
}

var argTypes = map[dispatch.Operation]any{
	dispatch.OpListEventTypes:    dispatch.ListEventTypesArgs{},
	dispatch.OpCheckAvailability: dispatch.CheckAvailabilityArgs{},
	dispatch.OpCreateBooking:     dispatch.CreateBookingArgs{},
	dispatch.OpListBookings:      dispatch.ListBookingsArgs{},
	dispatch.OpCancelBooking:     dispatch.CancelBookingArgs{},
	dispatch.OpRescheduleBooking: dispatch.RescheduleBookingArgs{},
	dispatch.OpCreateEventType:   dispatch.CreateEventTypeArgs{},
}

// Declarations describes every operation as a function declaration.
func Declarations() []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(dispatch.Tools))
	for _, t := range dispatch.Tools {
		out = append(out, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaFor(argTypes[dispatch.Operation(t.Name)]),
		})
	}
	return out
}

// schemaFor derives an object schema from the json and jsonschema tags of
// the argument struct v.
func schemaFor(v any) *genai.Schema {
	s := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	if v == nil {
		return s
	}
	rt := reflect.TypeOf(v)
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		prop := &genai.Schema{Type: genai.TypeString}
		switch f.Type.Kind() {
		case reflect.Int, reflect.Int64, reflect.Int32:
			prop.Type = genai.TypeInteger
		case reflect.Bool:
			prop.Type = genai.TypeBoolean
		}
		if d, ok := strings.CutPrefix(f.Tag.Get("jsonschema"), "description="); ok {
			prop.Description = d
		}
		s.Properties[name] = prop
	}
	return s
}
