package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripagent/internal/logging"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/tripagent/internal/http"

// Prometheus counters scraped from /metrics.
var (
	// Labels: signal (user_prompt, confirm, end_chat), result (ok, not_found, unavailable, error)
	signals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripagent",
			Subsystem: "gateway",
			Name:      "signals_total",
			Help:      "Signals delivered to agent sessions",
		},
		[]string{"signal", "result"},
	)

	// Labels: query, result
	queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripagent",
			Subsystem: "gateway",
			Name:      "queries_total",
			Help:      "Queries run against agent sessions",
		},
		[]string{"query", "result"},
	)

	// Labels: result
	sessionStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripagent",
			Subsystem: "gateway",
			Name:      "session_starts_total",
			Help:      "Session start requests, including automatic starts from history requests",
		},
		[]string{"result"},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tripagent",
			Subsystem: "gateway",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter",
		},
	)
)

// HTTPMetrics holds the otel request instruments.
type HTTPMetrics struct {
	meter          metric.Meter
	logger         *logging.Logger
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics creates a new HTTPMetrics instance on the global meter
// provider.
func NewHTTPMetrics(logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.Nop()
	}

	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	ctx := context.Background()
	var err error

	m.requestsTotal, err = m.meter.Int64Counter(
		"tripagent.http.requests_total",
		metric.WithDescription("Gateway requests labeled by method, route and status code"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create requests counter", zap.Error(err))
	}

	// Query routes wait on the worker, so the buckets reach past the 5s
	// query timeout.
	m.requestDur, err = m.meter.Float64Histogram(
		"tripagent.http.request_duration_seconds",
		metric.WithDescription("Gateway request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	m.activeRequests, err = m.meter.Int64UpDownCounter(
		"tripagent.http.active_requests",
		metric.WithDescription("Number of in-flight gateway requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create active requests gauge", zap.Error(err))
	}
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()

			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
				defer m.activeRequests.Add(ctx, -1)
			}

			err := next(c)

			// Routes are fixed paths; unmatched requests share one label.
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := responseStatus(c, err)
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", route),
				attribute.Int("status", status),
			)

			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, attrs)
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

// responseStatus is the status the client will see. Handler errors are
// rendered after middleware returns, so the recorded status is still the
// default at that point.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
