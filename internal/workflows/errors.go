package workflows

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"
)

// Error severity levels for workflow errors
type ErrorSeverity string

const (
	// ErrorSeverityCritical fails the session.
	ErrorSeverityCritical ErrorSeverity = "critical"
	// ErrorSeverityHigh aborts the current round; the session continues.
	ErrorSeverityHigh ErrorSeverity = "high"
	// ErrorSeverityLow is logged and otherwise ignored.
	ErrorSeverityLow ErrorSeverity = "low"
)

var (
	// ErrCollaboratorUnavailable marks a planner or validator call that
	// failed after its retry budget.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrInvalidInput marks workflow input that cannot drive a session.
	ErrInvalidInput = errors.New("invalid session input")
)

// Application error types returned across the activity boundary.
const (
	ErrTypeInvalidInput    = "InvalidInput"
	ErrTypeUnknownTool     = "UnknownTool"
	ErrTypeArgument        = "ArgumentError"
	ErrTypeUpstream        = "UpstreamError"
	ErrTypeInvalidDecision = "InvalidDecision"
	ErrTypePermanentLLM    = "PermanentLLMError"
)

// WorkflowError represents a structured error in a workflow
type WorkflowError struct {
	Operation string        // The operation that failed (e.g., "plan_next_step")
	Severity  ErrorSeverity // How severe the error is
	Err       error         // The underlying error
	Context   string        // Additional context about the error
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s failed: %s (%s)", e.Operation, e.Err.Error(), e.Context)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Err.Error())
}

// Unwrap allows errors.Is and errors.As to work with WorkflowError
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError creates a new workflow error with context
func NewWorkflowError(operation string, severity ErrorSeverity, err error, context string) *WorkflowError {
	return &WorkflowError{
		Operation: operation,
		Severity:  severity,
		Err:       err,
		Context:   context,
	}
}

// collaboratorError wraps a failed planner or validator activity.
func collaboratorError(operation string, err error) *WorkflowError {
	return NewWorkflowError(operation, ErrorSeverityHigh,
		fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err), "")
}

// invalidInputError fails the workflow without retrying the task.
func invalidInputError(err error) error {
	wrapped := NewWorkflowError("start_session", ErrorSeverityCritical,
		fmt.Errorf("%w: %w", ErrInvalidInput, err), "")
	return temporal.NewNonRetryableApplicationError(wrapped.Error(), ErrTypeInvalidInput, wrapped)
}

// errorMessage extracts the user-facing message from an activity error.
func errorMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "tool timed out"
	}
	return err.Error()
}

// Error handling in this package follows three severities.
//
// CRITICAL (fail the session):
//   - Workflow input that cannot drive a session: a goal without tools,
//     duplicate tool names, a pending proposal for a tool outside the goal
//   - Pattern: return a non-retryable application error of type InvalidInput
//
// HIGH (abort the round, keep the session):
//   - Planner or validator activities that exhaust their retry budget
//   - Pattern: log, count, record in SessionStatus.LastError, return to Idle
//     with the proposal and confirmation flags untouched
//
// LOW (log only):
//   - Policy lookup or summarization failures, which have fallbacks
//
// Tool failures are not errors at this level. They become a tool_result
// message of the form {"error": ..., "tool": ...} and a follow-up prompt.
