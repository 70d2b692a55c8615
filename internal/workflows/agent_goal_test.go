package workflows

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/tripagent/internal/conversation"
	"github.com/fyrsmithlabs/tripagent/internal/goals"
	"github.com/fyrsmithlabs/tripagent/internal/tools"
)

func question(text string) conversation.ToolProposal {
	return conversation.ToolProposal{Next: conversation.NextQuestion, Response: text, Args: map[string]any{}}
}

func confirm(tool string, args map[string]any) conversation.ToolProposal {
	return conversation.ToolProposal{Next: conversation.NextConfirm, Tool: tool, Response: "Let's proceed with " + tool, Args: args}
}

// Scenario A: a question round leaves nothing awaiting confirmation.
func TestAgentGoalWorkflow_QuestionRound(t *testing.T) {
	h := newHarness(t, question("Sydney has several events in May. Which would you like?"))

	var hist ConversationHistory
	var status SessionStatus
	var latest *ToolProposal
	h.at(time.Minute, func() { h.signal(SignalUserPrompt, "sydney in may") })
	h.at(2*time.Minute, func() {
		hist = h.history(t)
		status = h.status(t)
		latest = h.latest(t)
	})
	h.at(3*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	assert.Equal(t, []conversation.Actor{conversation.ActorUser, conversation.ActorAgent}, actors(hist))
	assert.Equal(t, "sydney in may", hist.Messages[0].Response)
	assert.False(t, status.WaitingForConfirm)
	assert.False(t, status.Confirmed)
	assert.True(t, status.RequireConfirmation)
	require.NotNil(t, latest)
	assert.Equal(t, conversation.NextQuestion, latest.Next)
	assert.True(t, latest.ForceConfirm)
	assert.Equal(t, hist, result)
	assert.Empty(t, h.tools.Calls())
}

// Scenario B: missing arguments enqueue a follow-up instead of waiting.
func TestAgentGoalWorkflow_MissingArguments(t *testing.T) {
	h := newHarness(t,
		confirm(tools.SearchFlightsTool, map[string]any{"origin": "AUS", "destination": nil}),
		question("Where are you flying to, and on which dates?"),
	)

	var status SessionStatus
	h.at(time.Minute, func() { h.signal(SignalUserPrompt, "fly me from austin") })
	h.at(2*time.Minute, func() { status = h.status(t) })
	h.at(3*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	prompts := h.planner.Prompts()
	require.Len(t, prompts, 2)
	assert.Equal(t,
		"### INSTRUCTIONS set next='question', combine this response response='Let's proceed with SearchFlights' "+
			"and following missing arguments for tool SearchFlights: [destination, dateDepart, dateReturn]. "+
			"Only provide a valid JSON response without any comments or metadata.",
		prompts[1])

	assert.False(t, status.WaitingForConfirm)
	assert.Equal(t, []conversation.Actor{conversation.ActorUser, conversation.ActorAgent}, actors(result))
	assert.Empty(t, h.tools.Calls())
}

// Scenario C: a complete confirm proposal waits for the confirm signal.
func TestAgentGoalWorkflow_ConfirmAndExecute(t *testing.T) {
	h := newHarness(t,
		confirm(tools.CreateInvoiceTool, map[string]any{"amount": 850.0, "tripDetails": "flight"}),
		question("Your invoice is ready. Anything else?"),
	)
	h.tools.results[tools.CreateInvoiceTool] = map[string]any{
		"invoiceStatus": "generated",
		"invoiceURL":    "https://pay.example.com/invoice/12345",
		"reference":     "INV-12345",
	}

	var before, after SessionStatus
	var callsBefore int
	h.at(time.Minute, func() { h.signal(SignalUserPrompt, "invoice me for the flight") })
	h.at(2*time.Minute, func() {
		before = h.status(t)
		callsBefore = len(h.tools.Calls())
	})
	h.at(3*time.Minute, func() { h.signal(SignalConfirm, nil) })
	h.at(4*time.Minute, func() { after = h.status(t) })
	h.at(5*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	assert.True(t, before.WaitingForConfirm)
	assert.False(t, before.Confirmed)
	assert.Zero(t, callsBefore)

	assert.False(t, after.WaitingForConfirm)
	assert.False(t, after.Confirmed)

	calls := h.tools.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, tools.CreateInvoiceTool, calls[0].Tool)
	assert.Equal(t, 850.0, calls[0].Args["amount"])
	assert.Equal(t, "flight", calls[0].Args["tripDetails"])

	assert.Equal(t, []conversation.Actor{
		conversation.ActorUser,
		conversation.ActorAgent,
		conversation.ActorConfirmedToolRun,
		conversation.ActorToolResult,
		conversation.ActorAgent,
	}, actors(result))

	run, ok := result.Messages[2].Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(conversation.NextConfirmedRun), run["next"])

	toolResult, ok := result.Messages[3].Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "INV-12345", toolResult["reference"])
	assert.Equal(t, tools.CreateInvoiceTool, toolResult["tool"])

	prompts := h.planner.Prompts()
	require.Len(t, prompts, 2)
	assert.True(t, strings.HasPrefix(prompts[1], "### The 'CreateInvoice' tool completed successfully\nwith {"))
	assert.Contains(t, prompts[1], `"reference":"INV-12345"`)
}

func TestAgentGoalWorkflow_QueueIsFIFO(t *testing.T) {
	h := newHarness(t)

	h.at(time.Minute, func() {
		h.signal(SignalUserPrompt, "first")
		h.signal(SignalUserPrompt, "second")
		h.signal(SignalUserPrompt, "third")
	})
	h.at(2*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	var users []any
	for _, m := range result.Messages {
		if m.Actor == conversation.ActorUser {
			users = append(users, m.Response)
		}
	}
	assert.Equal(t, []any{"first", "second", "third"}, users)
	assert.Equal(t, []string{"first", "second", "third"}, h.planner.Prompts())
}

func TestAgentGoalWorkflow_SystemPromptSkipsValidation(t *testing.T) {
	h := newHarness(t, question("Welcome! Which city and month are you interested in?"))
	goal := testGoal(t)
	starter := StarterPrompt(goal.StarterPrompt)
	h.validator.reject[starter] = "should never be consulted"

	h.at(time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{
		Goal:   goal,
		Params: AgentGoalParams{PromptQueue: []string{starter}},
	})

	result := h.result(t)
	assert.Equal(t, []conversation.Actor{conversation.ActorAgent}, actors(result))
	assert.Equal(t, []string{starter}, h.planner.Prompts())
}

func TestAgentGoalWorkflow_ValidationRejection(t *testing.T) {
	h := newHarness(t)
	h.validator.reject["what's the weather on mars"] = "Let's stay on your trip. Which city are you visiting?"

	var latest *ToolProposal
	h.at(time.Minute, func() { h.signal(SignalUserPrompt, "what's the weather on mars") })
	h.at(2*time.Minute, func() { latest = h.latest(t) })
	h.at(3*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	assert.Equal(t, []conversation.Actor{conversation.ActorUser, conversation.ActorAgent}, actors(result))
	reason, ok := result.Messages[1].Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Let's stay on your trip. Which city are you visiting?", reason["response"])
	assert.Empty(t, h.planner.Prompts())
	assert.Nil(t, latest)
}

func TestAgentGoalWorkflow_ConfirmationDisabled(t *testing.T) {
	h := newHarness(t,
		confirm(tools.FindEventsTool, map[string]any{"city": "Sydney", "month": "May"}),
		question("Vivid Sydney is on. Shall I look for flights?"),
	)
	h.showConfirm = "false"
	h.tools.results[tools.FindEventsTool] = map[string]any{"note": "Returning events", "events": []any{}}

	h.at(time.Minute, func() { h.signal(SignalUserPrompt, "sydney in may") })
	h.at(2*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	require.Len(t, h.tools.Calls(), 1)
	assert.Equal(t, conversation.ActorToolResult, result.Messages[3].Actor)

	agent, ok := result.Messages[1].Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, agent["force_confirm"])
}

func TestAgentGoalWorkflow_ToolFailureContinues(t *testing.T) {
	h := newHarness(t,
		confirm(tools.FindEventsTool, map[string]any{"city": "Sydney", "month": "Smarch"}),
		question("That month didn't work. Which month did you mean?"),
	)
	h.showConfirm = "false"
	h.tools.errs[tools.FindEventsTool] = &tools.ArgumentError{Tool: tools.FindEventsTool, Message: "Invalid month provided."}

	var status SessionStatus
	h.at(time.Minute, func() { h.signal(SignalUserPrompt, "sydney in smarch") })
	h.at(2*time.Minute, func() { status = h.status(t) })
	h.at(3*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	assert.Len(t, h.tools.Calls(), 1, "argument errors are not retried")
	assert.Equal(t, map[string]any{"error": "Invalid month provided.", "tool": tools.FindEventsTool}, result.Messages[3].Response)
	assert.False(t, status.WaitingForConfirm)

	prompts := h.planner.Prompts()
	require.Len(t, prompts, 2)
	assert.True(t, strings.HasPrefix(prompts[1], "### The 'FindEvents' tool failed with the error: Invalid month provided."))
	assert.Equal(t, conversation.ActorAgent, result.Messages[4].Actor)
}

func TestAgentGoalWorkflow_ToolResultKeepsHandlerToolField(t *testing.T) {
	h := newHarness(t, confirm(tools.FindEventsTool, map[string]any{"city": "Sydney", "month": "May"}))
	h.showConfirm = "false"
	h.tools.results[tools.FindEventsTool] = map[string]any{"tool": "ticketing-v2", "events": []any{}}

	h.at(time.Minute, func() { h.signal(SignalUserPrompt, "events in sydney in may") })
	h.at(2*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	require.GreaterOrEqual(t, len(result.Messages), 4)
	require.Equal(t, conversation.ActorToolResult, result.Messages[3].Actor)
	toolResult, ok := result.Messages[3].Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ticketing-v2", toolResult["tool"])
	assert.Equal(t, []any{}, toolResult["events"])
}

func TestAgentGoalWorkflow_UnknownToolIsRecorded(t *testing.T) {
	h := newHarness(t, confirm(tools.FindEventsTool, map[string]any{"city": "Perth", "month": "March"}))
	h.showConfirm = "false"
	h.tools.errs[tools.FindEventsTool] = tools.ErrUnknownTool

	h.at(time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{
		Goal:   testGoal(t),
		Params: AgentGoalParams{PromptQueue: []string{"perth in march"}},
	})

	result := h.result(t)
	require.GreaterOrEqual(t, len(result.Messages), 4)
	toolResult, ok := result.Messages[3].Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unknown tool", toolResult["error"])
	assert.Len(t, h.tools.Calls(), 1)
}

func TestAgentGoalWorkflow_StrayConfirmIsIgnored(t *testing.T) {
	h := newHarness(t, question("Which city?"))

	var status SessionStatus
	h.at(time.Minute, func() { h.signal(SignalConfirm, nil) })
	h.at(2*time.Minute, func() { h.signal(SignalUserPrompt, "hello") })
	h.at(3*time.Minute, func() { status = h.status(t) })
	h.at(4*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	h.result(t)
	assert.False(t, status.Confirmed)
	assert.Empty(t, h.tools.Calls())
}

func TestAgentGoalWorkflow_EndChatWinsOverConfirm(t *testing.T) {
	h := newHarness(t, confirm(tools.CreateInvoiceTool, map[string]any{"amount": 100.0, "tripDetails": "flight"}))

	h.at(time.Minute, func() { h.signal(SignalUserPrompt, "invoice please") })
	h.at(2*time.Minute, func() {
		h.signal(SignalConfirm, nil)
		h.signal(SignalEndChat, nil)
		h.signal(SignalUserPrompt, "one more thing")
	})

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	assert.Equal(t, []conversation.Actor{conversation.ActorUser, conversation.ActorAgent}, actors(result))
	assert.Empty(t, h.tools.Calls())
	for _, m := range result.Messages {
		assert.NotEqual(t, "one more thing", m.Response)
	}
}

func TestAgentGoalWorkflow_EndChatMidQueue(t *testing.T) {
	h := newHarness(t)

	h.at(time.Minute, func() {
		h.signal(SignalUserPrompt, "a")
		h.signal(SignalUserPrompt, "b")
		h.signal(SignalEndChat, nil)
	})

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	assert.Empty(t, result.Messages)
	assert.Empty(t, h.planner.Prompts())
	assert.Empty(t, h.tools.Calls())
}

func TestAgentGoalWorkflow_EndChatDuringValidationSkipsPlanning(t *testing.T) {
	h := newHarness(t)
	var a *Activities
	h.env.OnActivity(a.ValidatePrompt, mock.Anything, mock.Anything).
		After(2*time.Minute).
		Return(conversation.ValidationResult{Valid: true}, nil)

	h.at(time.Minute, func() { h.signal(SignalUserPrompt, "sydney in may") })
	h.at(2*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	assert.Equal(t, []conversation.Actor{conversation.ActorUser}, actors(result))
	assert.Empty(t, h.planner.Prompts())
}

func TestAgentGoalWorkflow_CollaboratorFailureAbortsRound(t *testing.T) {
	h := newHarness(t)
	var a *Activities
	h.env.OnActivity(a.PlanNextStep, mock.Anything, mock.Anything).
		Return(ToolProposal{}, temporal.NewNonRetryableApplicationError("model unavailable", "Unavailable", nil)).Once()
	h.env.OnActivity(a.PlanNextStep, mock.Anything, mock.Anything).
		Return(question("Where would you like to go?"), nil)

	var failed SessionStatus
	var latest *ToolProposal
	var recovered SessionStatus
	h.at(time.Minute, func() { h.signal(SignalUserPrompt, "hello") })
	h.at(2*time.Minute, func() {
		failed = h.status(t)
		latest = h.latest(t)
	})
	h.at(3*time.Minute, func() { h.signal(SignalUserPrompt, "hello again") })
	h.at(4*time.Minute, func() { recovered = h.status(t) })
	h.at(5*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	result := h.result(t)
	assert.Contains(t, failed.LastError, ErrCollaboratorUnavailable.Error())
	assert.False(t, failed.WaitingForConfirm)
	assert.Nil(t, latest)
	assert.Empty(t, recovered.LastError)
	assert.Equal(t, []conversation.Actor{
		conversation.ActorUser,
		conversation.ActorUser,
		conversation.ActorAgent,
	}, actors(result))
}

func TestAgentGoalWorkflow_ContinueAsNew(t *testing.T) {
	h := newHarness(t,
		question("Which month?"),
		confirm(tools.FindEventsTool, map[string]any{"city": "Sydney", "month": "May"}),
	)

	h.at(time.Minute, func() {
		h.signal(SignalUserPrompt, "a")
		h.signal(SignalUserPrompt, "b")
		h.signal(SignalUserPrompt, "c")
	})

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{
		Goal:   testGoal(t),
		Params: AgentGoalParams{MaxTurns: 4, KeepMessages: 2},
	})

	require.True(t, h.env.IsWorkflowCompleted())
	err := h.env.GetWorkflowError()
	require.Error(t, err)
	require.True(t, workflow.IsContinueAsNewError(err))

	var canErr *workflow.ContinueAsNewError
	require.True(t, errors.As(err, &canErr))
	var next AgentGoalInput
	require.NoError(t, converter.GetDefaultDataConverter().FromPayloads(canErr.Input, &next))

	p := next.Params
	assert.Equal(t, "User is planning a trip.", p.ConversationSummary)
	assert.Equal(t, []string{"c"}, p.PromptQueue)
	assert.Equal(t, []conversation.Actor{conversation.ActorUser, conversation.ActorAgent}, actors(ConversationHistory{Messages: p.History}))
	assert.Equal(t, "b", p.History[0].Response)
	require.NotNil(t, p.Proposal)
	assert.Equal(t, tools.FindEventsTool, p.Proposal.Tool)
	assert.True(t, p.WaitingForConfirm)
	assert.False(t, p.Confirmed)
	require.NotNil(t, p.RequireConfirmation)
	assert.True(t, *p.RequireConfirmation)
	assert.Equal(t, 1, p.Epoch)
	assert.Equal(t, 4, p.MaxTurns)
	assert.Equal(t, 2, p.KeepMessages)
	assert.Equal(t, "goal_event_flight_invoice", next.Goal.ID)

	require.Len(t, h.summarizer.got, 1)
	assert.Len(t, h.summarizer.got[0], 2)
}

func TestAgentGoalWorkflow_ContinueAsNewFallsBackToMarker(t *testing.T) {
	h := newHarness(t)
	h.summarizer.err = errors.New("summarizer offline")

	h.at(time.Minute, func() {
		h.signal(SignalUserPrompt, "a")
		h.signal(SignalUserPrompt, "b")
	})

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{
		Goal:   testGoal(t),
		Params: AgentGoalParams{MaxTurns: 4, KeepMessages: 2},
	})

	err := h.env.GetWorkflowError()
	var canErr *workflow.ContinueAsNewError
	require.True(t, errors.As(err, &canErr))
	var next AgentGoalInput
	require.NoError(t, converter.GetDefaultDataConverter().FromPayloads(canErr.Input, &next))
	assert.Equal(t, CompactionMarker(2), next.Params.ConversationSummary)
	assert.Empty(t, next.Params.PromptQueue)
}

func TestAgentGoalWorkflow_ResumesCarriedState(t *testing.T) {
	h := newHarness(t, question("Events found. Shall I search flights?"))
	h.showConfirm = "false"
	h.tools.results[tools.FindEventsTool] = map[string]any{"events": []any{}}

	pending := confirm(tools.FindEventsTool, map[string]any{"city": "Sydney", "month": "May"})
	pending.ForceConfirm = true

	var resumed ConversationHistory
	var status SessionStatus
	h.at(time.Minute, func() { resumed = h.history(t) })
	h.at(2*time.Minute, func() { h.signal(SignalConfirm, nil) })
	h.at(3*time.Minute, func() { status = h.status(t) })
	h.at(4*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{
		Goal: testGoal(t),
		Params: AgentGoalParams{
			ConversationSummary: "User wants Sydney in May.",
			History: []Message{
				{Actor: conversation.ActorUser, Response: "sydney in may"},
				{Actor: conversation.ActorAgent, Response: "Let's proceed with FindEvents"},
			},
			Proposal:            &pending,
			WaitingForConfirm:   true,
			RequireConfirmation: boolPtr(true),
			Epoch:               1,
		},
	})

	h.result(t)
	assert.Equal(t, []conversation.Actor{
		conversation.ActorSummary,
		conversation.ActorUser,
		conversation.ActorAgent,
	}, actors(resumed))
	assert.Equal(t, "User wants Sydney in May.", resumed.Messages[0].Response)

	assert.True(t, status.RequireConfirmation, "carried policy is not looked up again")
	assert.Equal(t, 1, status.Epoch)
	assert.False(t, status.WaitingForConfirm)
	require.Len(t, h.tools.Calls(), 1)
}

func TestAgentGoalWorkflow_RejectsInvalidInput(t *testing.T) {
	goal := testGoal(t)
	unknown := confirm("BookHotel", map[string]any{})

	tests := []struct {
		name  string
		input AgentGoalInput
	}{
		{
			name:  "goal without tools",
			input: AgentGoalInput{Goal: goals.Goal{ID: "empty"}},
		},
		{
			name:  "pending proposal outside goal",
			input: AgentGoalInput{Goal: goal, Params: AgentGoalParams{Proposal: &unknown}},
		},
		{
			name:  "waiting without proposal",
			input: AgentGoalInput{Goal: goal, Params: AgentGoalParams{WaitingForConfirm: true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.env.ExecuteWorkflow(AgentGoalWorkflow, tt.input)

			require.True(t, h.env.IsWorkflowCompleted())
			err := h.env.GetWorkflowError()
			require.Error(t, err)

			var appErr *temporal.ApplicationError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, ErrTypeInvalidInput, appErr.Type())
			assert.True(t, appErr.NonRetryable())
		})
	}
}

func TestAgentGoalWorkflow_GoalQuery(t *testing.T) {
	h := newHarness(t)

	var got goals.Goal
	h.at(time.Minute, func() { h.query(t, QueryAgentGoal, &got) })
	h.at(2*time.Minute, func() { h.signal(SignalEndChat, nil) })

	h.env.ExecuteWorkflow(AgentGoalWorkflow, AgentGoalInput{Goal: testGoal(t)})

	h.result(t)
	assert.Equal(t, testGoal(t), got)
}
