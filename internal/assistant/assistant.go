// Package assistant classifies utterances with Claude tool calling.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"calassist/internal/dispatch"
)

const (
	defaultModel     = anthropic.ModelClaude3_5HaikuLatest
	defaultMaxTokens = 1024
)

// Options configures a Classifier.
type Options struct {
	APIKey     string
	BaseURL    string // optional, for proxies and tests
	Model      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Classifier implements dispatch.Classifier on top of the Messages API.
// Each tool stands for one operation; the first tool call the model makes
// becomes the intent. Tools never touch the scheduling service.
type Classifier struct {
	client anthropic.Client
	model  anthropic.Model
	logger *zap.Logger
}

// New creates a Classifier. An empty API key is an error.
func New(opts Options) (*Classifier, error) {
	if opts.APIKey == "" {
		return nil, errors.New("anthropic classifier: API key is required")
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(1)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	model := anthropic.Model(opts.Model)
	if model == "" {
		model = defaultModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		client: anthropic.NewClient(clientOpts...),
		model:  model,
		logger: logger,
	}, nil
}

// Classify implements dispatch.Classifier.
func (c *Classifier) Classify(ctx context.Context, req dispatch.Request) (dispatch.Intent, error) {
	capture := &toolCapture{}
	tools, err := buildTools(capture)
	if err != nil {
		return dispatch.Intent{}, fmt.Errorf("build tools: %w", err)
	}

	runner := c.client.Beta.Messages.NewToolRunner(tools, anthropic.BetaToolRunnerParams{
		BetaMessageNewParams: anthropic.BetaMessageNewParams{
			Model:     c.model,
			MaxTokens: defaultMaxTokens,
			System: []anthropic.BetaTextBlockParam{
				{Text: dispatch.BuildPrompt(req)},
			},
			Messages: messages(req),
		},
	})

	msg, err := runner.RunToCompletion(ctx)
	if err != nil {
		return dispatch.Intent{}, fmt.Errorf("anthropic: %w", err)
	}

	name, args, ok := capture.first()
	if !ok {
		c.logger.Debug("no tool call", zap.String("model", string(c.model)))
		return dispatch.Intent{Operation: dispatch.OpNone, Reply: extractText(msg)}, nil
	}
	c.logger.Debug("tool call", zap.String("tool", name), zap.ByteString("args", args))
	return dispatch.ToolCall(name, args, req.Location)
}

// extractText pulls all text blocks from the assistant message into a single string.
func extractText(msg *anthropic.BetaMessage) string {
	if msg == nil {
		return ""
	}
	var parts []string
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.BetaTextBlock); ok && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
