package workflows

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"
)

const summaryStartToClose = time.Minute

// CompactionMarker is the summary used when no summarizer is available.
func CompactionMarker(n int) string {
	return fmt.Sprintf("%d earlier messages compacted", n)
}

// continueAsNew ends the epoch, carrying the queue, the pending proposal
// and the confirmation state into the next run. It returns nil without
// continuing if the chat ended while signals were drained.
func (s *sessionState) continueAsNew(ctx workflow.Context, a *Activities, sig *signals) error {
	logger := workflow.GetLogger(ctx)

	sig.drain(ctx, s)
	if s.chatEnded {
		return nil
	}

	keep := min(s.keepMessages, s.history.Len())
	older := s.history.Messages[:s.history.Len()-keep]
	kept := s.history.Tail(keep)

	summary := s.summarize(ctx, a, older)

	// The summary activity yields, so signals may have arrived meanwhile.
	sig.drain(ctx, s)
	if s.chatEnded {
		return nil
	}

	policy := s.requireConfirmation
	params := AgentGoalParams{
		ConversationSummary: summary,
		PromptQueue:         slices.Clone(s.queue),
		History:             kept,
		WaitingForConfirm:   s.waitingForConfirm,
		Confirmed:           s.confirmed,
		RequireConfirmation: &policy,
		MaxTurns:            s.maxTurns,
		KeepMessages:        s.keepMessages,
		Epoch:               s.epoch + 1,
	}
	if s.proposal != nil {
		c := s.proposal.Clone()
		params.Proposal = &c
	}

	logger.Info("Continuing as new",
		"epoch", params.Epoch,
		"compacted", len(older),
		"kept", len(kept),
		"queued", len(params.PromptQueue))
	s.count(ctx, metricContinueAsNew)

	return workflow.NewContinueAsNewError(ctx, AgentGoalWorkflow, AgentGoalInput{
		Goal:   s.goal,
		Params: params,
	})
}

func (s *sessionState) summarize(ctx workflow.Context, a *Activities, older []Message) string {
	if len(older) == 0 {
		return CompactionMarker(0)
	}
	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout:    summaryStartToClose,
		ScheduleToCloseTimeout: 5 * summaryStartToClose,
		RetryPolicy:            retryPolicy(3),
	})

	var summary string
	err := workflow.ExecuteActivity(actx, a.SummarizeHistory, SummarizeHistoryInput{
		Goal:     s.goal,
		Messages: older,
	}).Get(ctx, &summary)
	if err != nil || strings.TrimSpace(summary) == "" {
		workflow.GetLogger(ctx).Warn("Summarization unavailable, using marker", "error", err)
		return CompactionMarker(len(older))
	}
	return summary
}
