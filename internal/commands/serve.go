package commands

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"calassist/internal/httpserver"
	mcpserver "calassist/internal/mcp"
)

// RunServe starts the websocket chat server on addr, or CALASSIST_SERVE_ADDR
// when addr is empty, and blocks until SIGINT/SIGTERM.
func RunServe(addr string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, appOptions{needClassifier: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if addr == "" {
		addr = a.cfg.ServeAddr
	}
	tokens := a.cfg.Tokens()
	if len(tokens) == 0 && !isLoopback(addr) {
		a.logger.Warn("serving without auth on a non-loopback address; set CALASSIST_SERVE_TOKENS",
			zap.String("addr", addr))
	}

	srv := httpserver.New(httpserver.Options{
		Handler:     a.dispatcher,
		Tokens:      tokens,
		Version:     Version,
		Status:      a.status(),
		Logger:      a.logger.Named("http"),
		Metrics:     a.metrics,
		Gatherer:    a.registry,
		TurnTimeout: turnTimeout,
	})
	return srv.ListenAndServe(ctx, addr)
}

// RunMCP serves the gateway as MCP tools over stdio. Stdout carries the
// protocol, so logs go to LOG_FILE or nowhere.
func RunMCP() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, appOptions{quietLog: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcpserver.New(a.client, a.cfg.Location(), nil, a.logger.Named("mcp"))
	if err := srv.Run(ctx, Version); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
