// Package logging provides structured logging for tripagent.
//
// Logger wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout and OpenTelemetry outputs
//   - correlation fields pulled from context (trace_id, session.id, request.id, goal.id)
//   - secret redaction at the encoder
//   - level-aware sampling (errors are never sampled)
//
// The same sink serves the Temporal SDK through NewTemporalLogger, so
// workflow, activity and client logs carry the service fields.
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = logger.Sync() }()
//
//	ctx = logging.WithSessionID(ctx, "agent-workflow")
//	logger.Info(ctx, "prompt signalled", zap.Int("length", len(prompt)))
package logging
