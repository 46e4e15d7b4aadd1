package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"calassist/internal/assistant"
	"calassist/internal/assistant/gemini"
	"calassist/internal/calcom"
	"calassist/internal/config"
	"calassist/internal/dispatch"
	"calassist/internal/httpserver"
	"calassist/internal/logging"
	"calassist/internal/observability"
)

// Global flags shared by every command.
var (
	envFile    string
	configPath string
)

// app is everything a command needs, built from configuration once.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	registry   *prometheus.Registry
	metrics    *observability.Metrics
	client     *calcom.Client
	dispatcher *dispatch.Dispatcher
	closers    []io.Closer
}

type appOptions struct {
	// quietLog discards logs unless LOG_FILE is set. The TUI owns the
	// terminal and stdio MCP owns stdout.
	quietLog bool
	// needClassifier builds the language backend and dispatcher.
	needClassifier bool
}

func loadConfig() (*config.Config, error) {
	opts := config.LoadOptions{EnvFile: envFile}
	if configPath != "" {
		opts.ConfigPaths = []string{configPath}
	}
	return config.Load(opts)
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if !opts.quietLog || cfg.LogFile != "" {
		logger, err = logging.New(logging.Options{Env: cfg.Env, Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			return nil, err
		}
	}

	if cfg.CalAPIKey() == "" {
		logger.Warn("CAL_API_KEY is not set; scheduling requests will fail until it is")
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics,
		client: calcom.NewClient(cfg.CalBaseURL, cfg,
			calcom.WithLocation(cfg.Location()),
			calcom.WithTimeout(cfg.RequestTimeout),
			calcom.WithRequestsPerMinute(cfg.RequestsPerMinute),
			calcom.WithLogger(logger.Named("calcom")),
			calcom.WithObserver(metrics),
		),
	}

	if opts.needClassifier {
		classifier, err := a.classifier(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.dispatcher = dispatch.New(a.client, classifier,
			dispatch.WithLocation(cfg.Location()),
			dispatch.WithLogger(logger.Named("dispatch")),
			dispatch.WithObserver(metrics),
		)
	}
	return a, nil
}

// classifier builds the backend selected by CALASSIST_CLASSIFIER.
func (a *app) classifier(ctx context.Context) (dispatch.Classifier, error) {
	backend := a.cfg.ResolvedClassifier()
	key, err := a.cfg.LLMAPIKey()
	if err != nil {
		// Startup continues so the status surfaces can show the missing key;
		// every turn reports it instead.
		a.logger.Warn("language backend unavailable", zap.String("backend", backend), zap.Error(err))
		return missingKey(err), nil
	}

	a.logger.Info("language backend selected", zap.String("backend", backend))
	switch backend {
	case config.ClassifierAnthropic:
		c, err := assistant.New(assistant.Options{
			APIKey:  key,
			BaseURL: a.cfg.AnthropicBaseURL,
			Model:   a.cfg.Model,
			Logger:  a.logger.Named("anthropic"),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ClassifierGemini:
		c, err := gemini.New(ctx, key, a.cfg.GeminiModel, a.logger.Named("gemini"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c)
		return c, nil
	case config.ClassifierRules:
		return dispatch.RuleClassifier{}, nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", backend)
	}
}

// missingKey is the classifier installed when the backend's key is unset.
func missingKey(err error) dispatch.Classifier {
	return dispatch.ClassifierFunc(func(context.Context, dispatch.Request) (dispatch.Intent, error) {
		return dispatch.Intent{}, err
	})
}

// status is the secret-free summary shown by `status`, /status and the TUI.
func (a *app) status() httpserver.StatusResponse {
	return httpserver.StatusResponse{
		Version:     Version,
		Classifier:  a.cfg.ResolvedClassifier(),
		Timezone:    a.cfg.Location().String(),
		BaseURL:     a.cfg.CalBaseURL,
		Credentials: a.cfg.Credentials(),
	}
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
