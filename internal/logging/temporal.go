package logging

import (
	"fmt"

	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// TemporalLogger adapts Logger to the Temporal SDK log.Logger interface.
type TemporalLogger struct {
	zap *zap.Logger
}

var (
	_ log.Logger          = (*TemporalLogger)(nil)
	_ log.WithLogger      = (*TemporalLogger)(nil)
	_ log.WithSkipCallers = (*TemporalLogger)(nil)
)

// NewTemporalLogger returns a Temporal logger writing through l.
func NewTemporalLogger(l *Logger) *TemporalLogger {
	return &TemporalLogger{zap: l.zap.Named("temporal").WithOptions(zap.AddCallerSkip(1))}
}

func (t *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	t.zap.Debug(msg, keyvalFields(keyvals)...)
}

func (t *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	t.zap.Info(msg, keyvalFields(keyvals)...)
}

func (t *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	t.zap.Warn(msg, keyvalFields(keyvals)...)
}

func (t *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	t.zap.Error(msg, keyvalFields(keyvals)...)
}

// With returns a logger that always includes keyvals.
func (t *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	return &TemporalLogger{zap: t.zap.With(keyvalFields(keyvals)...)}
}

// WithCallerSkip adjusts caller reporting for SDK wrappers.
func (t *TemporalLogger) WithCallerSkip(depth int) log.Logger {
	return &TemporalLogger{zap: t.zap.WithOptions(zap.AddCallerSkip(depth))}
}

// keyvalFields converts alternating key/value pairs into zap fields. A
// dangling key is logged under "extra".
func keyvalFields(keyvals []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keyvals)/2+1)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 >= len(keyvals) {
			fields = append(fields, zap.Any("extra", keyvals[i]))
			break
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if err, ok := keyvals[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	return fields
}
