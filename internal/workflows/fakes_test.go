package workflows

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/fyrsmithlabs/tripagent/internal/conversation"
	"github.com/fyrsmithlabs/tripagent/internal/goals"
	"github.com/fyrsmithlabs/tripagent/internal/tools"
)

type fakePlanner struct {
	mu      sync.Mutex
	script  []conversation.ToolProposal
	prompts []string
	priors  []*conversation.ToolProposal
}

func (p *fakePlanner) Plan(_ context.Context, _ goals.Goal, _ conversation.History, prior *conversation.ToolProposal, prompt string) (conversation.ToolProposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	p.priors = append(p.priors, prior)
	if len(p.script) == 0 {
		return conversation.ToolProposal{Next: conversation.NextQuestion, Response: "Anything else?", Args: map[string]any{}}, nil
	}
	next := p.script[0]
	p.script = p.script[1:]
	return next.Clone(), nil
}

func (p *fakePlanner) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

type fakeValidator struct {
	reject map[string]string
}

func (v *fakeValidator) Validate(_ context.Context, _ goals.Goal, _ conversation.History, prompt string) (conversation.ValidationResult, error) {
	if reason, ok := v.reject[prompt]; ok {
		return conversation.ValidationResult{Reason: conversation.ValidationReason{Next: conversation.NextQuestion, Response: reason}}, nil
	}
	return conversation.ValidationResult{Valid: true}, nil
}

type fakeDispatcher struct {
	mu      sync.Mutex
	results map[string]map[string]any
	errs    map[string]error
	calls   []ExecuteToolInput
	keys    []string
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, ExecuteToolInput{Tool: name, Args: args})
	d.keys = append(d.keys, tools.IdempotencyKey(ctx))
	if err := d.errs[name]; err != nil {
		return nil, err
	}
	return d.results[name], nil
}

func (d *fakeDispatcher) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.keys...)
}

func (d *fakeDispatcher) Calls() []ExecuteToolInput {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ExecuteToolInput(nil), d.calls...)
}

type fakeSummarizer struct {
	mu      sync.Mutex
	summary string
	err     error
	got     [][]conversation.Message
}

func (s *fakeSummarizer) Summarize(_ context.Context, _ goals.Goal, messages []conversation.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, messages)
	return s.summary, s.err
}

type harness struct {
	env         *testsuite.TestWorkflowEnvironment
	planner     *fakePlanner
	validator   *fakeValidator
	tools       *fakeDispatcher
	summarizer  *fakeSummarizer
	showConfirm string
}

func newHarness(t *testing.T, script ...conversation.ToolProposal) *harness {
	t.Helper()
	h := &harness{
		planner:    &fakePlanner{script: script},
		validator:  &fakeValidator{reject: map[string]string{}},
		tools:      &fakeDispatcher{results: map[string]map[string]any{}, errs: map[string]error{}},
		summarizer: &fakeSummarizer{summary: "User is planning a trip."},
	}

	testSuite := &testsuite.WorkflowTestSuite{}
	h.env = testSuite.NewTestWorkflowEnvironment()
	h.env.RegisterWorkflow(AgentGoalWorkflow)
	h.env.RegisterActivity(&Activities{
		Planner:    h.planner,
		Validator:  h.validator,
		Summarizer: h.summarizer,
		Tools:      h.tools,
		Getenv:     func(string) string { return h.showConfirm },
	})
	return h
}

func (h *harness) at(d time.Duration, fn func()) {
	h.env.RegisterDelayedCallback(fn, d)
}

func (h *harness) signal(name string, arg any) {
	h.env.SignalWorkflow(name, arg)
}

// Query helpers run inside delayed callbacks, so they assert rather than
// require.

func (h *harness) history(t *testing.T) ConversationHistory {
	t.Helper()
	var out ConversationHistory
	h.query(t, QueryConversationHistory, &out)
	return out
}

func (h *harness) status(t *testing.T) SessionStatus {
	t.Helper()
	var out SessionStatus
	h.query(t, QuerySessionStatus, &out)
	return out
}

func (h *harness) latest(t *testing.T) *ToolProposal {
	t.Helper()
	var out *ToolProposal
	h.query(t, QueryLatestToolData, &out)
	return out
}

func (h *harness) query(t *testing.T, name string, out any) {
	t.Helper()
	v, err := h.env.QueryWorkflow(name)
	if !assert.NoError(t, err) {
		return
	}
	assert.NoError(t, v.Get(out))
}

func (h *harness) result(t *testing.T) ConversationHistory {
	t.Helper()
	require.True(t, h.env.IsWorkflowCompleted())
	require.NoError(t, h.env.GetWorkflowError())
	var out ConversationHistory
	require.NoError(t, h.env.GetWorkflowResult(&out))
	return out
}

func testGoal(t *testing.T) goals.Goal {
	t.Helper()
	catalog, err := goals.Default()
	require.NoError(t, err)
	g, err := catalog.Get("goal_event_flight_invoice")
	require.NoError(t, err)
	return g
}

func actors(h ConversationHistory) []conversation.Actor {
	out := make([]conversation.Actor, len(h.Messages))
	for i, m := range h.Messages {
		out[i] = m.Actor
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
