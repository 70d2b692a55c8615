package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Nil(t, tel.LoggerProvider(), "no log export while disabled")
	assert.False(t, tel.IsEnabled())

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	health := tel.Health()
	assert.False(t, health.Healthy)
	assert.True(t, health.Degraded)
}

func TestTelemetry_DegradedReasons(t *testing.T) {
	tel := &Telemetry{}
	tel.healthy.Store(true)
	tel.setDegraded("meter provider: %s", "dial refused")

	health := tel.Health()
	assert.True(t, health.Degraded)
	assert.Equal(t, []string{"meter provider: dial refused"}, health.Reasons)
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()

	_, span := tt.Tracer("tripagent.test").Start(context.Background(), "PlanNextStep")
	span.SetAttributes(attribute.String("goal.id", "goal_event_flight_invoice"))
	span.End()

	tt.AssertSpanExists(t, "PlanNextStep")
	require.Len(t, tt.Spans(), 1)
	assert.True(t, tt.IsEnabled())
}

func TestTestTelemetry_Counter(t *testing.T) {
	tt := NewTestTelemetry()
	counter, err := tt.Meter("tripagent.test").Int64Counter("tripagent.test.calls")
	require.NoError(t, err)

	ctx := context.Background()
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("tool", "FindEvents")))
	counter.Add(ctx, 3, metric.WithAttributes(attribute.String("tool", "SearchFlights")))

	assert.Equal(t, int64(5), tt.CounterTotal(t, "tripagent.test.calls"))
	assert.Equal(t, int64(0), tt.CounterTotal(t, "missing"))
}

func TestTestTelemetry_Shutdown(t *testing.T) {
	tt := NewTestTelemetry()
	require.NoError(t, tt.ForceFlush(context.Background()))
	require.NoError(t, tt.Shutdown(context.Background()))
	assert.False(t, tt.IsEnabled())
}

func TestTestTelemetry_Logs(t *testing.T) {
	tt := NewTestTelemetry()
	require.NotNil(t, tt.LoggerProvider())

	var rec otellog.Record
	rec.SetBody(otellog.StringValue("session started"))
	rec.SetSeverity(otellog.SeverityInfo)
	tt.LoggerProvider().Logger("tripagent.test").Emit(context.Background(), rec)

	records := tt.LogRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "session started", records[0].Body().AsString())
	assert.Equal(t, otellog.SeverityInfo, records[0].Severity())
}
