package workflows

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/fyrsmithlabs/tripagent/internal/conversation"
	"github.com/fyrsmithlabs/tripagent/internal/goals"
	"github.com/fyrsmithlabs/tripagent/internal/tools"
)

func newActivityEnv(acts *Activities) *testsuite.TestActivityEnvironment {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	env.RegisterActivity(acts)
	return env
}

func requireAppError(t *testing.T, err error) *temporal.ApplicationError {
	t.Helper()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected application error, got %T: %v", err, err)
	return appErr
}

func TestExecuteTool_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantType     string
		nonRetryable bool
		wantMessage  string
	}{
		{
			name:         "unknown tool",
			err:          tools.ErrUnknownTool,
			wantType:     ErrTypeUnknownTool,
			nonRetryable: true,
		},
		{
			name:         "argument error",
			err:          &tools.ArgumentError{Tool: "FindEvents", Message: "Invalid month provided."},
			wantType:     ErrTypeArgument,
			nonRetryable: true,
			wantMessage:  "Invalid month provided.",
		},
		{
			name:     "upstream throttled",
			err:      &tools.UpstreamError{Service: "rapidapi", StatusCode: 429, Body: "slow down"},
			wantType: ErrTypeUpstream,
		},
		{
			name:         "upstream rejected",
			err:          &tools.UpstreamError{Service: "stripe", StatusCode: 402, Body: "card declined"},
			wantType:     ErrTypeUpstream,
			nonRetryable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{errs: map[string]error{"FindEvents": tt.err}}
			acts := &Activities{Tools: d}
			env := newActivityEnv(acts)

			_, err := env.ExecuteActivity(acts.ExecuteTool, ExecuteToolInput{Tool: "FindEvents", Args: map[string]any{"city": "Perth"}})
			appErr := requireAppError(t, err)
			assert.Equal(t, tt.wantType, appErr.Type())
			assert.Equal(t, tt.nonRetryable, appErr.NonRetryable())
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, appErr.Message())
			}
		})
	}
}

func TestExecuteTool_Success(t *testing.T) {
	d := &fakeDispatcher{results: map[string]map[string]any{"FindEvents": {"events": []any{}}}}
	acts := &Activities{Tools: d}
	env := newActivityEnv(acts)

	val, err := env.ExecuteActivity(acts.ExecuteTool, ExecuteToolInput{Tool: "FindEvents"})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, val.Get(&out))
	assert.Equal(t, map[string]any{"events": []any{}}, out)

	calls := d.Calls()
	require.Len(t, calls, 1)
	assert.NotNil(t, calls[0].Args, "nil args are passed as an empty map")
}

func TestExecuteTool_PassesIdempotencyKey(t *testing.T) {
	d := &fakeDispatcher{results: map[string]map[string]any{}}
	acts := &Activities{Tools: d}
	env := newActivityEnv(acts)

	_, err := env.ExecuteActivity(acts.ExecuteTool, ExecuteToolInput{Tool: tools.CreateInvoiceTool})
	require.NoError(t, err)

	keys := d.Keys()
	require.Len(t, keys, 1)
	assert.NotEmpty(t, keys[0])
	assert.GreaterOrEqual(t, strings.Count(keys[0], "/"), 2, "workflow id, run id and activity id")
}

// A retried tool call sees the same key on every attempt.
func TestAgentGoalWorkflow_ToolRetriesShareIdempotencyKey(t *testing.T) {
	h := newHarness(t,
		confirm(tools.CreateInvoiceTool, map[string]any{"amount": 850.0, "tripDetails": "flight"}),
	)
	h.showConfirm = "false"
	h.tools.errs[tools.CreateInvoiceTool] = &tools.UpstreamError{Service: "stripe", StatusCode: 503}

	h.at(time.Minute, func() { h.signal(SignalUserPrompt, "invoice me") })
	h.at(30*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})
	h.result(t)

	keys := h.tools.Keys()
	require.Len(t, keys, 3)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, keys[0], keys[2])
}

func TestPlanNextStep_RejectsToolOutsideGoal(t *testing.T) {
	p := &fakePlanner{script: []conversation.ToolProposal{confirm("BookHotel", map[string]any{})}}
	acts := &Activities{Planner: p}
	env := newActivityEnv(acts)

	_, err := env.ExecuteActivity(acts.PlanNextStep, PlanNextStepInput{Goal: testGoal(t), Prompt: "hotel please"})
	appErr := requireAppError(t, err)
	assert.Equal(t, ErrTypeInvalidDecision, appErr.Type())
	assert.False(t, appErr.NonRetryable())
}

type errPlanner struct{ err error }

func (p errPlanner) Plan(context.Context, goals.Goal, conversation.History, *conversation.ToolProposal, string) (conversation.ToolProposal, error) {
	return conversation.ToolProposal{}, p.err
}

func TestPlanNextStep_InvalidProposalIsRetryable(t *testing.T) {
	acts := &Activities{Planner: errPlanner{err: conversation.ErrInvalidProposal}}
	env := newActivityEnv(acts)

	_, err := env.ExecuteActivity(acts.PlanNextStep, PlanNextStepInput{Goal: testGoal(t), Prompt: "hi"})
	appErr := requireAppError(t, err)
	assert.Equal(t, ErrTypeInvalidDecision, appErr.Type())
	assert.False(t, appErr.NonRetryable())
}

func TestValidatePrompt(t *testing.T) {
	v := &fakeValidator{reject: map[string]string{"nonsense": "Please tell me about your trip."}}
	acts := &Activities{Validator: v}
	env := newActivityEnv(acts)

	val, err := env.ExecuteActivity(acts.ValidatePrompt, ValidatePromptInput{Goal: testGoal(t), Prompt: "nonsense"})
	require.NoError(t, err)

	var out conversation.ValidationResult
	require.NoError(t, val.Get(&out))
	assert.False(t, out.Valid)
	assert.Equal(t, "Please tell me about your trip.", out.Reason.Response)
}

func TestSummarizeHistory(t *testing.T) {
	s := &fakeSummarizer{summary: "  User wants Sydney.  "}
	acts := &Activities{Summarizer: s}
	env := newActivityEnv(acts)

	val, err := env.ExecuteActivity(acts.SummarizeHistory, SummarizeHistoryInput{Goal: testGoal(t)})
	require.NoError(t, err)
	var out string
	require.NoError(t, val.Get(&out))
	assert.Equal(t, "User wants Sydney.", out)

	noSummarizer := &Activities{}
	env = newActivityEnv(noSummarizer)
	_, err = env.ExecuteActivity(noSummarizer.SummarizeHistory, SummarizeHistoryInput{Goal: testGoal(t)})
	assert.True(t, requireAppError(t, err).NonRetryable())
}

func TestLookupEnvSettings(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"false", false},
		{"FALSE", false},
		{"0", false},
		{"true", true},
		{"maybe", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			acts := &Activities{Getenv: func(name string) string {
				assert.Equal(t, ShowConfirmEnv, name)
				return tt.value
			}}
			env := newActivityEnv(acts)

			val, err := env.ExecuteActivity(acts.LookupEnvSettings, EnvLookupInput{
				ShowConfirmEnvVar:  ShowConfirmEnv,
				ShowConfirmDefault: true,
			})
			require.NoError(t, err)
			var out EnvLookupOutput
			require.NoError(t, val.Get(&out))
			assert.Equal(t, tt.want, out.ShowConfirm)
		})
	}
}
