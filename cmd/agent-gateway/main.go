// Package main runs the HTTP gateway in front of agent sessions.
//
// The gateway starts sessions, forwards prompts, confirmations and end-chat
// requests as workflow signals, and answers history, proposal and goal
// lookups with workflow queries.
//
// Usage:
//
//	TEMPORAL_ADDRESS=localhost:7233 \
//	GATEWAY_HTTP_PORT=8000 \
//	./agent-gateway
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripagent/internal/config"
	"github.com/fyrsmithlabs/tripagent/internal/goals"
	httpserver "github.com/fyrsmithlabs/tripagent/internal/http"
	"github.com/fyrsmithlabs/tripagent/internal/logging"
	"github.com/fyrsmithlabs/tripagent/internal/session"
	"github.com/fyrsmithlabs/tripagent/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg := logging.NewDefaultConfig()
	if err := logCfg.Apply(cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	// Telemetry comes first so the logger can export through its log provider.
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	catalog, err := goals.Default()
	if err != nil {
		return fmt.Errorf("loading goal catalog: %w", err)
	}

	sessions := session.New(session.Options{
		HostPort:     cfg.Temporal.Host,
		Namespace:    cfg.Temporal.Namespace,
		TaskQueue:    cfg.Temporal.TaskQueue,
		QueryTimeout: cfg.Gateway.QueryTimeout.Duration(),
		MaxTurns:     cfg.Agent.MaxTurns,
		KeepMessages: cfg.Agent.KeepMessages,
		Logger:       logger,
	})
	defer sessions.Close()

	server, err := httpserver.NewServer(sessions, catalog, logger, &httpserver.Config{
		Host:             cfg.Gateway.Host,
		Port:             cfg.Gateway.Port,
		DefaultSessionID: cfg.Gateway.SessionID,
		Goal:             cfg.Agent.Goal,
		CORSOrigins:      cfg.Gateway.CORSOrigins,
		RateLimit:        cfg.Gateway.RateLimit,
		RateBurst:        cfg.Gateway.RateBurst,
		Telemetry:        tel,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	logger.Info(ctx, "agent gateway starting",
		zap.String("temporal_host", cfg.Temporal.Host),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("goal", cfg.Agent.Goal),
	)

	serverErrors := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout.Duration())
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http server shutdown failed", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
	}

	logger.Info(shutdownCtx, "gateway stopped gracefully")
	return nil
}
