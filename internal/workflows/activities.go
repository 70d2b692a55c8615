package workflows

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/tripagent/internal/conversation"
	"github.com/fyrsmithlabs/tripagent/internal/goals"
	"github.com/fyrsmithlabs/tripagent/internal/llm"
	"github.com/fyrsmithlabs/tripagent/internal/tools"
)

// Planner proposes the next step of a conversation.
type Planner interface {
	Plan(ctx context.Context, goal goals.Goal, history conversation.History, prior *conversation.ToolProposal, prompt string) (conversation.ToolProposal, error)
}

// Validator decides whether a user prompt fits the goal.
type Validator interface {
	Validate(ctx context.Context, goal goals.Goal, history conversation.History, prompt string) (conversation.ValidationResult, error)
}

// Summarizer condenses messages that leave an epoch.
type Summarizer interface {
	Summarize(ctx context.Context, goal goals.Goal, messages []conversation.Message) (string, error)
}

// Dispatcher runs a tool by name.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// Activities holds the collaborators the agent workflow calls. Register a
// populated value with the worker; the workflow refers to the methods
// through a nil *Activities.
type Activities struct {
	Planner    Planner
	Validator  Validator
	Summarizer Summarizer
	Tools      Dispatcher

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

var tracer trace.Tracer = otel.Tracer(instrumentationName)

// ValidatePrompt asks the validator whether a user prompt fits the goal.
func (a *Activities) ValidatePrompt(ctx context.Context, input ValidatePromptInput) (result conversation.ValidationResult, err error) {
	start := time.Now()
	defer func() { recordActivity(ctx, "ValidatePrompt", start, err) }()

	if err := input.Validate(); err != nil {
		return result, inputError(err)
	}

	result, err = a.Validator.Validate(ctx, input.Goal, input.History, input.Prompt)
	if err != nil {
		return result, classifyLLMError(err)
	}
	validationCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", result.Valid)))
	return result, nil
}

// PlanNextStep asks the planner for a proposal and checks that any tool it
// names belongs to the goal.
func (a *Activities) PlanNextStep(ctx context.Context, input PlanNextStepInput) (proposal ToolProposal, err error) {
	start := time.Now()
	defer func() { recordActivity(ctx, "PlanNextStep", start, err) }()

	if err := input.Validate(); err != nil {
		return ToolProposal{}, inputError(err)
	}

	proposal, err = a.Planner.Plan(ctx, input.Goal, input.History, input.Prior, input.Prompt)
	if err != nil {
		return ToolProposal{}, classifyLLMError(err)
	}
	if proposal.Tool != "" {
		if _, ok := input.Goal.Tool(proposal.Tool); !ok {
			msg := fmt.Sprintf("planner proposed tool %q which is not part of goal %s", proposal.Tool, input.Goal.ID)
			return ToolProposal{}, temporal.NewApplicationError(msg, ErrTypeInvalidDecision)
		}
	}

	activity.GetLogger(ctx).Info("Planner decision", "next", string(proposal.Next), "tool", proposal.Tool)
	planDecisionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("next", string(proposal.Next))))
	return proposal, nil
}

// ExecuteTool dispatches one confirmed tool call. Handlers receive an
// idempotency key through tools.IdempotencyKey.
func (a *Activities) ExecuteTool(ctx context.Context, input ExecuteToolInput) (result map[string]any, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "tool."+input.Tool, trace.WithAttributes(attribute.String("tool.name", input.Tool)))
	defer func() {
		recordActivity(ctx, "ExecuteTool", start, err)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		toolExecutionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", input.Tool),
			attribute.String("outcome", outcome),
		))
		span.End()
	}()

	if err := input.Validate(); err != nil {
		return nil, inputError(err)
	}
	info := activity.GetInfo(ctx)
	activity.GetLogger(ctx).Info("Executing tool", "tool", input.Tool, "attempt", info.Attempt)

	// Retries of this activity share the key; a later tool call in the
	// session gets a new activity id and so a new key.
	ctx = tools.WithIdempotencyKey(ctx, fmt.Sprintf("%s/%s/%s",
		info.WorkflowExecution.ID, info.WorkflowExecution.RunID, info.ActivityID))

	args := maps.Clone(input.Args)
	if args == nil {
		args = map[string]any{}
	}
	result, err = a.Tools.Dispatch(ctx, input.Tool, args)
	if err != nil {
		return nil, classifyToolError(err)
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

// SummarizeHistory condenses the messages leaving the current epoch.
func (a *Activities) SummarizeHistory(ctx context.Context, input SummarizeHistoryInput) (summary string, err error) {
	start := time.Now()
	defer func() { recordActivity(ctx, "SummarizeHistory", start, err) }()

	if a.Summarizer == nil {
		return "", temporal.NewNonRetryableApplicationError("no summarizer configured", ErrTypePermanentLLM, nil)
	}
	summary, err = a.Summarizer.Summarize(ctx, input.Goal, input.Messages)
	if err != nil {
		return "", classifyLLMError(err)
	}
	return strings.TrimSpace(summary), nil
}

// LookupEnvSettings reads the confirmation policy once per session so the
// decision is recorded in workflow history.
func (a *Activities) LookupEnvSettings(ctx context.Context, input EnvLookupInput) (EnvLookupOutput, error) {
	getenv := a.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	out := EnvLookupOutput{ShowConfirm: input.ShowConfirmDefault}
	raw := strings.TrimSpace(getenv(input.ShowConfirmEnvVar))
	if raw == "" {
		return out, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		activity.GetLogger(ctx).Warn("Ignoring unparseable confirmation policy",
			"variable", input.ShowConfirmEnvVar, "value", raw)
		return out, nil
	}
	out.ShowConfirm = v
	return out, nil
}

// classifyToolError maps dispatcher errors onto application errors so the
// retry policy only repeats calls that can succeed.
func classifyToolError(err error) error {
	var argErr *tools.ArgumentError
	var upErr *tools.UpstreamError
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnknownTool, err)
	case errors.As(err, &argErr):
		return temporal.NewNonRetryableApplicationError(argErr.Message, ErrTypeArgument, err)
	case errors.As(err, &upErr):
		if upErr.Retryable() {
			return temporal.NewApplicationError(upErr.Error(), ErrTypeUpstream, err)
		}
		return temporal.NewNonRetryableApplicationError(upErr.Error(), ErrTypeUpstream, err)
	}
	return err
}

func classifyLLMError(err error) error {
	switch {
	case errors.Is(err, conversation.ErrInvalidProposal):
		return temporal.NewApplicationError(err.Error(), ErrTypeInvalidDecision, err)
	case llm.IsPermanent(err):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypePermanentLLM, err)
	}
	return err
}
