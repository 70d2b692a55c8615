package http

import "github.com/fyrsmithlabs/tripagent/internal/telemetry"

// MessageResponse is returned by the root route and the signal routes.
type MessageResponse struct {
	Message string `json:"message"`
}

// StartResponse is the response body for POST /start-workflow.
type StartResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id,omitempty"`
	Goal      string `json:"goal"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// GoalSummary is one entry of GET /goals.
type GoalSummary struct {
	ID          string   `json:"id"`
	CategoryTag string   `json:"category_tag"`
	AgentName   string   `json:"agent_name"`
	Description string   `json:"agent_friendly_description"`
	Tools       []string `json:"tools"`
}

// GoalsResponse is the response body for GET /goals.
type GoalsResponse struct {
	Default string        `json:"default"`
	Goals   []GoalSummary `json:"goals"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
