// Package main runs the Temporal worker that hosts agent sessions.
//
// The worker executes AgentGoalWorkflow and its activities: prompt
// validation, planning and summarization against an OpenAI-compatible model,
// and the tool handlers (events, flights, invoices).
//
// Usage:
//
//	OPENAI_API_KEY=sk-xxx \
//	TEMPORAL_ADDRESS=localhost:7233 \
//	./agent-worker
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripagent/internal/config"
	"github.com/fyrsmithlabs/tripagent/internal/llm"
	"github.com/fyrsmithlabs/tripagent/internal/logging"
	"github.com/fyrsmithlabs/tripagent/internal/telemetry"
	"github.com/fyrsmithlabs/tripagent/internal/tools"
	"github.com/fyrsmithlabs/tripagent/internal/workflows"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Create root context with signal handling
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
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	model, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}
	registry, err := tools.NewDefaultRegistry(cfg.Tools)
	if err != nil {
		return fmt.Errorf("creating tool registry: %w", err)
	}

	logger.Info(ctx, "agent worker starting",
		zap.String("temporal_host", cfg.Temporal.Host),
		zap.String("namespace", cfg.Temporal.Namespace),
		zap.String("llm_model", cfg.LLM.Model),
		logging.Secret("llm_api_key", cfg.LLM.APIKey),
		logging.Secret("rapidapi_key", cfg.Tools.RapidAPIKey),
		logging.Secret("stripe_api_key", cfg.Tools.StripeAPIKey),
		zap.Strings("tools", registry.Names()),
	)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.NewTemporalLogger(logger.Named("temporal")),
	})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	logger.Info(ctx, "temporal client connected", zap.String("host", cfg.Temporal.Host))

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.Temporal.MaxConcurrentActivities,
	})

	w.RegisterWorkflow(workflows.AgentGoalWorkflow)
	w.RegisterActivity(&workflows.Activities{
		Planner:    llm.NewPlanner(model),
		Validator:  llm.NewValidator(model),
		Summarizer: llm.NewSummarizer(model),
		Tools:      registry,
		Getenv:     os.Getenv,
	})

	logger.Info(ctx, "worker configured",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.Int("max_concurrent_activities", cfg.Temporal.MaxConcurrentActivities),
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- w.Run(worker.InterruptCh())
	}()

	select {
	case err := <-workerErrors:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
	case <-ctx.Done():
		// The worker sees the same signal through InterruptCh.
		logger.Info(ctx, "shutdown signal received")
		if err := <-workerErrors; err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
	}

	logger.Info(context.Background(), "worker stopped gracefully")
	return nil
}
