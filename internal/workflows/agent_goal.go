package workflows

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/tripagent/internal/conversation"
	"github.com/fyrsmithlabs/tripagent/internal/goals"
)

const (
	llmStartToClose     = 30 * time.Second
	llmScheduleToClose  = 10 * time.Minute
	toolStartToClose    = time.Minute
	toolScheduleToClose = 5 * time.Minute
	envStartToClose     = 10 * time.Second
)

// retryPolicy repeats failed activities at a fixed 5s interval.
func retryPolicy(maxAttempts int32) *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    5 * time.Second,
		BackoffCoefficient: 1,
		MaximumAttempts:    maxAttempts,
	}
}

func llmOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout:    llmStartToClose,
		ScheduleToCloseTimeout: llmScheduleToClose,
		RetryPolicy:            retryPolicy(0),
	})
}

func toolOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout:    toolStartToClose,
		ScheduleToCloseTimeout: toolScheduleToClose,
		RetryPolicy:            retryPolicy(3),
	})
}

// sessionState is the orchestrator state of one epoch. It is only touched
// from workflow coroutines.
type sessionState struct {
	goal              goals.Goal
	history           ConversationHistory
	queue             []string
	chatEnded         bool
	proposal          *ToolProposal
	waitingForConfirm bool
	confirmed         bool

	requireConfirmation bool
	policyKnown         bool

	maxTurns     int
	keepMessages int
	epoch        int
	rounds       int
	lastError    string
}

// AgentGoalWorkflow runs one conversation session.
//
// Each wake-up is handled in priority order: an ended chat returns the
// history, a confirmed proposal runs its tool, otherwise the oldest queued
// prompt is validated and planned. Between wake-ups the workflow blocks on
// signals. When history reaches MaxTurns the session continues as new with
// a summary and its pending state.
func AgentGoalWorkflow(ctx workflow.Context, input AgentGoalInput) (ConversationHistory, error) {
	logger := workflow.GetLogger(ctx)

	s, err := newSessionState(input)
	if err != nil {
		logger.Error("Rejecting session input", "error", err)
		return ConversationHistory{}, invalidInputError(err)
	}
	if err := s.registerQueries(ctx); err != nil {
		return ConversationHistory{}, err
	}
	sig := newSignals(ctx)
	sig.listen(ctx, s)

	logger.Info("Starting agent session",
		"goal", s.goal.ID,
		"epoch", s.epoch,
		"queued", len(s.queue),
		"history", s.history.Len())

	if !s.policyKnown {
		s.lookupPolicy(ctx)
	}

	var a *Activities
	for {
		if err := workflow.Await(ctx, s.wake); err != nil {
			return s.history.Clone(), err
		}
		// The listener applies one signal per wake-up. Apply the rest of a
		// batch now so end_chat is seen before any confirm or prompt in it.
		sig.drain(ctx, s)

		if s.chatEnded {
			logger.Info("Chat-end signal received, chat ending", "messages", s.history.Len())
			return s.history.Clone(), nil
		}

		if s.readyForToolExecution() {
			s.executeTool(ctx, a)
			continue
		}

		if len(s.queue) == 0 {
			continue
		}
		prompt := s.queue[0]
		s.queue = s.queue[1:]

		done, err := s.handlePrompt(ctx, a, prompt)
		if err != nil {
			var wfErr *WorkflowError
			if errors.As(err, &wfErr) && wfErr.Severity == ErrorSeverityCritical {
				return s.history.Clone(), err
			}
			logger.Error("Round aborted", "error", err)
			s.lastError = err.Error()
			s.count(ctx, metricCollaboratorFailures)
			continue
		}
		if done {
			logger.Info("Goal complete, ending session", "messages", s.history.Len())
			return s.history.Clone(), nil
		}

		if s.needsCompaction() {
			if err := s.continueAsNew(ctx, a, sig); err != nil {
				return s.history.Clone(), err
			}
		}
	}
}

func newSessionState(input AgentGoalInput) (*sessionState, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	p := input.Params
	s := &sessionState{
		goal:              input.Goal,
		queue:             slices.Clone(p.PromptQueue),
		waitingForConfirm: p.WaitingForConfirm,
		confirmed:         p.Confirmed && p.WaitingForConfirm,
		maxTurns:          p.MaxTurns,
		keepMessages:      p.KeepMessages,
		epoch:             p.Epoch,
	}
	if p.Proposal != nil {
		c := p.Proposal.Clone()
		s.proposal = &c
	}
	if p.RequireConfirmation != nil {
		s.requireConfirmation = *p.RequireConfirmation
		s.policyKnown = true
	}
	if s.maxTurns < 2 {
		s.maxTurns = DefaultMaxTurns
	}
	if s.keepMessages <= 0 {
		s.keepMessages = DefaultKeepMessages
	}
	if s.keepMessages > s.maxTurns/2 {
		s.keepMessages = s.maxTurns / 2
	}

	if p.ConversationSummary != "" {
		s.history.Messages = append(s.history.Messages, Message{
			Actor:    conversation.ActorSummary,
			Response: p.ConversationSummary,
		})
	}
	s.history.Messages = append(s.history.Messages, p.History...)
	return s, nil
}

func (s *sessionState) wake() bool {
	return len(s.queue) > 0 || s.chatEnded || (s.confirmed && s.waitingForConfirm)
}

func (s *sessionState) readyForToolExecution() bool {
	return s.confirmed && s.waitingForConfirm && s.proposal != nil
}

func (s *sessionState) needsCompaction() bool {
	return !s.chatEnded && s.history.Len() >= s.maxTurns
}

func (s *sessionState) addMessage(actor conversation.Actor, response any) {
	s.history.Messages = append(s.history.Messages, Message{Actor: actor, Response: response})
}

func (s *sessionState) count(ctx workflow.Context, name string) {
	workflow.GetMetricsHandler(ctx).WithTags(map[string]string{"goal": s.goal.ID}).Counter(name).Inc(1)
}

// lookupPolicy reads the confirmation policy. Failures fall back to
// requiring confirmation.
func (s *sessionState) lookupPolicy(ctx workflow.Context) {
	var a *Activities
	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: envStartToClose,
		RetryPolicy:         retryPolicy(3),
	})

	out := EnvLookupOutput{ShowConfirm: true}
	err := workflow.ExecuteActivity(actx, a.LookupEnvSettings, EnvLookupInput{
		ShowConfirmEnvVar:  ShowConfirmEnv,
		ShowConfirmDefault: true,
	}).Get(ctx, &out)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Policy lookup failed, requiring confirmation", "error", err)
		out.ShowConfirm = true
	}
	s.requireConfirmation = out.ShowConfirm
	s.policyKnown = true
}

// handlePrompt runs one validation and planning round. It reports whether
// the planner ended the session.
func (s *sessionState) handlePrompt(ctx workflow.Context, a *Activities, prompt string) (bool, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Processing prompt", "system", conversation.IsSystemPrompt(prompt), "queued", len(s.queue))
	s.rounds++

	if !conversation.IsSystemPrompt(prompt) {
		s.addMessage(conversation.ActorUser, prompt)

		var result conversation.ValidationResult
		err := workflow.ExecuteActivity(llmOptions(ctx), a.ValidatePrompt, ValidatePromptInput{
			Goal:    s.goal,
			History: s.history.Clone(),
			Prompt:  prompt,
		}).Get(ctx, &result)
		if err != nil {
			return false, collaboratorError("validate_prompt", err)
		}
		if s.chatEnded {
			logger.Info("Chat ended during validation, skipping planning")
			return false, nil
		}
		if !result.Valid {
			logger.Warn("Prompt validation failed", "reason", result.Reason.Response)
			s.addMessage(conversation.ActorAgent, result.Reason)
			s.count(ctx, metricValidationRejections)
			s.lastError = ""
			return false, nil
		}
	}

	var proposal ToolProposal
	err := workflow.ExecuteActivity(llmOptions(ctx), a.PlanNextStep, PlanNextStepInput{
		Goal:    s.goal,
		History: s.history.Clone(),
		Prior:   s.proposal,
		Prompt:  prompt,
	}).Get(ctx, &proposal)
	if err != nil {
		return false, collaboratorError("plan_next_step", err)
	}
	s.count(ctx, metricRounds)
	s.lastError = ""

	proposal.ForceConfirm = s.requireConfirmation
	if proposal.Args == nil {
		proposal.Args = map[string]any{}
	}
	s.proposal = &proposal
	s.waitingForConfirm = false
	s.confirmed = false

	logger.Info("Planner result", "next", string(proposal.Next), "tool", proposal.Tool)

	switch {
	case proposal.Next == conversation.NextConfirm && proposal.Tool != "":
		if missing := ResolveArguments(s.goal, proposal); len(missing) > 0 {
			logger.Info("Proposal is missing arguments", "tool", proposal.Tool, "missing", missing)
			s.queue = append(s.queue, missingArgsPrompt(proposal, missing))
			return false, nil
		}
		s.waitingForConfirm = true
		if s.requireConfirmation {
			logger.Info("Waiting for user confirm signal", "tool", proposal.Tool)
		} else {
			s.confirmed = true
		}
		s.addMessage(conversation.ActorAgent, proposal.Clone())
	case proposal.Next == conversation.NextDone:
		s.addMessage(conversation.ActorAgent, proposal.Clone())
		return true, nil
	default:
		s.addMessage(conversation.ActorAgent, proposal.Clone())
	}
	return false, nil
}

// executeTool runs the confirmed proposal. Tool failures are recorded in
// history and never end the session.
func (s *sessionState) executeTool(ctx workflow.Context, a *Activities) {
	logger := workflow.GetLogger(ctx)
	tool := s.proposal.Tool
	logger.Info("User confirmed, executing tool", "tool", tool)

	s.confirmed = false
	run := s.proposal.Clone()
	run.Next = conversation.NextConfirmedRun
	s.addMessage(conversation.ActorConfirmedToolRun, run)

	var result map[string]any
	err := workflow.ExecuteActivity(toolOptions(ctx), a.ExecuteTool, ExecuteToolInput{
		Tool: tool,
		Args: s.proposal.Clone().Args,
	}).Get(ctx, &result)
	s.count(ctx, metricToolRuns)

	if err != nil {
		msg := errorMessage(err)
		logger.Error("Tool execution failed", "tool", tool, "error", err)
		s.addMessage(conversation.ActorToolResult, map[string]any{"error": msg, "tool": tool})
		s.queue = append(s.queue, toolFailedPrompt(tool, msg))
	} else {
		out := maps.Clone(result)
		if out == nil {
			out = map[string]any{}
		}
		// A handler's own "tool" field wins over the tool name.
		if _, ok := out["tool"]; !ok {
			out["tool"] = tool
		}
		s.addMessage(conversation.ActorToolResult, out)
		s.queue = append(s.queue, toolCompletionPrompt(tool, result))
	}

	s.waitingForConfirm = false
}

func (s *sessionState) status() SessionStatus {
	return SessionStatus{
		Goal:                s.goal.ID,
		WaitingForConfirm:   s.waitingForConfirm,
		Confirmed:           s.confirmed,
		ChatEnded:           s.chatEnded,
		QueueLength:         len(s.queue),
		RequireConfirmation: s.requireConfirmation,
		HistoryLength:       s.history.Len(),
		Epoch:               s.epoch,
		Rounds:              s.rounds,
		LastError:           s.lastError,
	}
}

func (s *sessionState) registerQueries(ctx workflow.Context) error {
	handlers := []struct {
		name    string
		handler any
	}{
		{QueryConversationHistory, func() (ConversationHistory, error) {
			return s.history.Clone(), nil
		}},
		{QueryLatestToolData, func() (*ToolProposal, error) {
			if s.proposal == nil {
				return nil, nil
			}
			c := s.proposal.Clone()
			return &c, nil
		}},
		{QueryAgentGoal, func() (goals.Goal, error) {
			return s.goal, nil
		}},
		{QuerySessionStatus, func() (SessionStatus, error) {
			return s.status(), nil
		}},
	}
	for _, h := range handlers {
		if err := workflow.SetQueryHandler(ctx, h.name, h.handler); err != nil {
			return fmt.Errorf("registering query %s: %w", h.name, err)
		}
	}
	return nil
}
