package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"calassist/internal/dispatch"
	"calassist/internal/observability"
)

// Handler runs one conversation turn. *dispatch.Dispatcher satisfies it.
type Handler interface {
	Handle(ctx context.Context, conv *dispatch.Conversation, utterance string) dispatch.Reply
}

// Options configures a Server.
type Options struct {
	Handler  Handler
	Tokens   []string // empty disables auth
	Version  string
	Status   StatusResponse
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	// TurnTimeout bounds one websocket turn. Zero means two minutes.
	TurnTimeout time.Duration
}

// Server exposes the dispatcher over a websocket chat plus health, status
// and metrics endpoints.
type Server struct {
	handler     Handler
	tokens      []string
	version     string
	status      StatusResponse
	logger      *zap.Logger
	metrics     *observability.Metrics
	gatherer    prometheus.Gatherer
	turnTimeout time.Duration
	upgrader    websocket.Upgrader
}

// New creates a Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	timeout := opts.TurnTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Server{
		handler:     opts.Handler,
		tokens:      opts.Tokens,
		version:     opts.Version,
		status:      opts.Status,
		logger:      logger,
		metrics:     opts.Metrics,
		gatherer:    gatherer,
		turnTimeout: timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Auth is handled at the HTTP layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router returns the HTTP handler with every route registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", observability.Handler(s.gatherer).ServeHTTP)
		r.Get("/ws", s.handleWebSocket)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr), zap.Int("tokens", len(s.tokens)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
