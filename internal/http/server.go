// Package http provides the gateway HTTP API for agent sessions.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripagent/internal/goals"
	"github.com/fyrsmithlabs/tripagent/internal/logging"
	"github.com/fyrsmithlabs/tripagent/internal/session"
	"github.com/fyrsmithlabs/tripagent/internal/telemetry"
	"github.com/fyrsmithlabs/tripagent/internal/workflows"
)

// Sessions is the session operations the gateway exposes. *session.Client
// implements it.
type Sessions interface {
	Start(ctx context.Context, sessionID string, goal goals.Goal) (session.Started, error)
	SendPrompt(ctx context.Context, sessionID, prompt string) error
	Confirm(ctx context.Context, sessionID string) error
	EndChat(ctx context.Context, sessionID string) error
	History(ctx context.Context, sessionID string) (workflows.ConversationHistory, error)
	LatestToolData(ctx context.Context, sessionID string) (*workflows.ToolProposal, error)
	Goal(ctx context.Context, sessionID string) (goals.Goal, error)
	Status(ctx context.Context, sessionID string) (workflows.SessionStatus, error)
}

// Server provides the gateway HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	sessions Sessions
	catalog  *goals.Catalog
	logger   *logging.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host             string
	Port             int
	DefaultSessionID string
	// Goal is the catalog id used by /start-workflow when the request
	// names none.
	Goal        string
	CORSOrigins []string
	RateLimit   float64 // requests per second per client IP, 0 disables
	RateBurst   int
	// Telemetry, when set, is reported by /health.
	Telemetry *telemetry.Telemetry
}

// NewServer creates a new HTTP server.
func NewServer(sessions Sessions, catalog *goals.Catalog, logger *logging.Logger, cfg *Config) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("sessions cannot be nil")
	}
	if catalog == nil {
		return nil, fmt.Errorf("goal catalog cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:             "localhost",
			Port:             8000,
			DefaultSessionID: "agent-workflow",
			Goal:             "goal_event_flight_invoice",
			CORSOrigins:      []string{"http://localhost:5173"},
		}
	}
	if _, err := catalog.Get(cfg.Goal); err != nil {
		return nil, fmt.Errorf("default goal %q: %w", cfg.Goal, err)
	}
	if err := logging.ValidateID(cfg.DefaultSessionID, "default session id"); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.CORSOrigins,
			AllowCredentials: true,
			AllowHeaders:     []string{"*"},
		}))
	}
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	if cfg.RateLimit > 0 {
		e.Use(newIPLimiter(cfg.RateLimit, cfg.RateBurst).Middleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(req.Context(), requestID)
			if sid := c.QueryParam("session_id"); sid != "" {
				ctx = logging.WithSessionID(ctx, sid)
			}
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", responseStatus(c, err)),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		sessions: sessions,
		catalog:  catalog,
		logger:   logger,
		config:   cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints. Paths match the ones the web
// frontend already calls.
func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/goals", s.handleGoals)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/start-workflow", s.handleStart)
	s.echo.POST("/send-prompt", s.handleSendPrompt)
	s.echo.POST("/confirm", s.handleConfirm)
	s.echo.POST("/end-chat", s.handleEndChat)

	s.echo.GET("/get-conversation-history", s.handleHistory)
	s.echo.GET("/get-latest-tool-data", s.handleLatestToolData)
	s.echo.GET("/get-agent-goal", s.handleAgentGoal)
	s.echo.GET("/get-session-status", s.handleSessionStatus)
}

// Echo exposes the underlying router for tests and extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// errorHandler renders errors as {"detail": "..."}, the shape the frontend
// reads.
func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		detail := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				detail = msg
			} else {
				detail = http.StatusText(code)
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Error(c.Request().Context(), "request failed", zap.Error(err), zap.Int("status", code))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, ErrorResponse{Detail: detail})
		}
		if err != nil {
			logger.Warn(c.Request().Context(), "writing error response", zap.Error(err))
		}
	}
}
