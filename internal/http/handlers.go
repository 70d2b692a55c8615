package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripagent/internal/goals"
	"github.com/fyrsmithlabs/tripagent/internal/logging"
	"github.com/fyrsmithlabs/tripagent/internal/session"
	"github.com/fyrsmithlabs/tripagent/internal/workflows"
)

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, MessageResponse{Message: "Temporal AI Agent!"})
}

// handleHealth reports the gateway as up. Degraded telemetry is surfaced
// but never fails the check.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.config.Telemetry != nil {
		h := s.config.Telemetry.Health()
		if h.Degraded {
			resp.Status = "degraded"
		}
		resp.Telemetry = &h
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGoals(c echo.Context) error {
	all := s.catalog.List()
	resp := GoalsResponse{Default: s.config.Goal, Goals: make([]GoalSummary, 0, len(all))}
	for _, g := range all {
		resp.Goals = append(resp.Goals, GoalSummary{
			ID:          g.ID,
			CategoryTag: g.CategoryTag,
			AgentName:   g.AgentName,
			Description: g.Description,
			Tools:       g.ToolNames(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// handleStart starts a session for the requested goal (default goal when
// none is named) and seeds it with the goal's starter prompt.
func (s *Server) handleStart(c echo.Context) error {
	sessionID, err := s.sessionID(c)
	if err != nil {
		return err
	}

	goalID := c.QueryParam("goal")
	if goalID == "" {
		goalID = s.config.Goal
	}
	goal, err := s.catalog.Get(goalID)
	if err != nil {
		if errors.Is(err, goals.ErrGoalNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown goal %q", goalID))
		}
		return err
	}

	started, err := s.start(c, sessionID, goal)
	if err != nil {
		return sessionHTTPError(err)
	}

	return c.JSON(http.StatusOK, StartResponse{
		Message:   fmt.Sprintf("Workflow started with goal's starter prompt: %s.", goal.StarterPrompt),
		SessionID: started.SessionID,
		RunID:     started.RunID,
		Goal:      goal.ID,
	})
}

func (s *Server) start(c echo.Context, sessionID string, goal goals.Goal) (session.Started, error) {
	started, err := s.sessions.Start(c.Request().Context(), sessionID, goal)
	sessionStarts.WithLabelValues(resultLabel(err)).Inc()
	return started, err
}

// handleSendPrompt signals the prompt query parameter to the session.
func (s *Server) handleSendPrompt(c echo.Context) error {
	sessionID, err := s.sessionID(c)
	if err != nil {
		return err
	}
	prompt := c.QueryParam("prompt")
	if strings.TrimSpace(prompt) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt query parameter is required")
	}

	if err := s.signal(c, workflows.SignalUserPrompt, func() error {
		return s.sessions.SendPrompt(c.Request().Context(), sessionID, prompt)
	}); err != nil {
		return sessionHTTPError(err)
	}
	return c.JSON(http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Prompt '%s' sent to workflow %s.", prompt, sessionID),
	})
}

func (s *Server) handleConfirm(c echo.Context) error {
	sessionID, err := s.sessionID(c)
	if err != nil {
		return err
	}
	if err := s.signal(c, workflows.SignalConfirm, func() error {
		return s.sessions.Confirm(c.Request().Context(), sessionID)
	}); err != nil {
		return sessionHTTPError(err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Confirm signal sent."})
}

// handleEndChat ends the session. Ending a session that does not exist is
// not an error; the response body is empty.
func (s *Server) handleEndChat(c echo.Context) error {
	sessionID, err := s.sessionID(c)
	if err != nil {
		return err
	}
	err = s.signal(c, workflows.SignalEndChat, func() error {
		return s.sessions.EndChat(c.Request().Context(), sessionID)
	})
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, MessageResponse{Message: "End chat signal sent."})
	case errors.Is(err, session.ErrSessionNotFound):
		return c.JSON(http.StatusOK, map[string]string{})
	default:
		return sessionHTTPError(err)
	}
}

// handleHistory returns the conversation history. A missing session is
// started with the default goal and reported as an empty history; an
// unreachable worker is reported as 404.
func (s *Server) handleHistory(c echo.Context) error {
	sessionID, err := s.sessionID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	history, err := s.sessions.History(ctx, sessionID)
	queries.WithLabelValues(workflows.QueryConversationHistory, resultLabel(err)).Inc()
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, history)
	case errors.Is(err, session.ErrSessionNotFound):
		goal, gerr := s.catalog.Get(s.config.Goal)
		if gerr != nil {
			return gerr
		}
		if _, serr := s.start(c, sessionID, goal); serr != nil {
			return sessionHTTPError(serr)
		}
		s.logger.Info(ctx, "started missing session on history request", zap.String("goal.id", goal.ID))
		return c.JSON(http.StatusOK, workflows.ConversationHistory{Messages: []workflows.Message{}})
	case errors.Is(err, session.ErrSessionUnavailable):
		s.logger.Warn(ctx, "history query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusNotFound, "Workflow worker unavailable or not found.")
	default:
		return sessionHTTPError(err)
	}
}

// handleLatestToolData returns the current proposal, or null before the
// agent has proposed anything.
func (s *Server) handleLatestToolData(c echo.Context) error {
	sessionID, err := s.sessionID(c)
	if err != nil {
		return err
	}
	proposal, err := s.sessions.LatestToolData(c.Request().Context(), sessionID)
	queries.WithLabelValues(workflows.QueryLatestToolData, resultLabel(err)).Inc()
	if err != nil {
		return sessionHTTPError(err)
	}
	return c.JSON(http.StatusOK, proposal)
}

func (s *Server) handleAgentGoal(c echo.Context) error {
	sessionID, err := s.sessionID(c)
	if err != nil {
		return err
	}
	goal, err := s.sessions.Goal(c.Request().Context(), sessionID)
	queries.WithLabelValues(workflows.QueryAgentGoal, resultLabel(err)).Inc()
	if err != nil {
		return sessionHTTPError(err)
	}
	return c.JSON(http.StatusOK, goal)
}

func (s *Server) handleSessionStatus(c echo.Context) error {
	sessionID, err := s.sessionID(c)
	if err != nil {
		return err
	}
	status, err := s.sessions.Status(c.Request().Context(), sessionID)
	queries.WithLabelValues(workflows.QuerySessionStatus, resultLabel(err)).Inc()
	if err != nil {
		return sessionHTTPError(err)
	}
	return c.JSON(http.StatusOK, status)
}

// sessionID reads the optional session_id query parameter.
func (s *Server) sessionID(c echo.Context) (string, error) {
	id := c.QueryParam("session_id")
	if id == "" {
		return s.config.DefaultSessionID, nil
	}
	if err := logging.ValidateID(id, "session_id"); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return id, nil
}

func (s *Server) signal(c echo.Context, name string, send func() error) error {
	err := send()
	signals.WithLabelValues(name, resultLabel(err)).Inc()
	if err != nil {
		s.logger.Warn(c.Request().Context(), "signal failed", zap.String("signal", name), zap.Error(err))
	}
	return err
}

// sessionHTTPError maps session errors to HTTP status codes.
func sessionHTTPError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found").SetInternal(err)
	case errors.Is(err, session.ErrSessionUnavailable), errors.Is(err, session.ErrClientClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"session unavailable (worker may be down)").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError,
			"internal server error while contacting the workflow").SetInternal(err)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, session.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, session.ErrSessionUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
