package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := SessionIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("session.id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if id := GoalIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("goal.id", id))
	}

	return fields
}

type sessionCtxKey struct{}
type requestCtxKey struct{}
type goalCtxKey struct{}
type loggerCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidateID checks a session, request or goal identifier.
func ValidateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, dot, hyphen, underscore)", name)
	}
	return nil
}

// WithSessionID adds a session ID to context. Invalid IDs are ignored so a
// malformed inbound value never breaks logging.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ValidateID(sessionID, "sessionID") != nil {
		return ctx
	}
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// SessionIDFromContext extracts the session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sessionCtxKey{}).(string)
	return s
}

// WithRequestID adds a request ID to context. Invalid IDs are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ValidateID(requestID, "requestID") != nil {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	r, _ := ctx.Value(requestCtxKey{}).(string)
	return r
}

// WithGoalID adds the agent goal ID to context. Invalid IDs are ignored.
func WithGoalID(ctx context.Context, goalID string) context.Context {
	if ValidateID(goalID, "goalID") != nil {
		return ctx
	}
	return context.WithValue(ctx, goalCtxKey{}, goalID)
}

// GoalIDFromContext extracts the goal ID from context.
func GoalIDFromContext(ctx context.Context) string {
	g, _ := ctx.Value(goalCtxKey{}).(string)
	return g
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
