package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/tripagent/internal/conversation"
	"github.com/fyrsmithlabs/tripagent/internal/goals"
)

// DefaultRejection is shown when the model rejects a prompt without
// saying why.
const DefaultRejection = "I'm not sure how that relates to what we're doing. Could you rephrase it?"

// Planner asks the model for the next tool proposal.
type Planner struct {
	llm Completer
}

// NewPlanner returns a Planner backed by c.
func NewPlanner(c Completer) *Planner {
	return &Planner{llm: c}
}

// Plan returns the model's decision for prompt. Output that does not parse
// as a proposal is returned as an error wrapping
// conversation.ErrInvalidProposal.
func (p *Planner) Plan(ctx context.Context, goal goals.Goal, history conversation.History, prior *conversation.ToolProposal, prompt string) (conversation.ToolProposal, error) {
	system, err := AgentPrompt(goal, history, prior)
	if err != nil {
		return conversation.ToolProposal{}, err
	}
	out, err := p.llm.Complete(ctx, system, prompt, true)
	if err != nil {
		return conversation.ToolProposal{}, err
	}
	return conversation.ParseProposal([]byte(out))
}

// Validator asks the model whether a user prompt fits the goal.
type Validator struct {
	llm Completer
}

// NewValidator returns a Validator backed by c.
func NewValidator(c Completer) *Validator {
	return &Validator{llm: c}
}

type rawValidation struct {
	Valid  *bool           `json:"validationResult"`
	Reason json.RawMessage `json:"validationFailedReason"`
}

// Validate judges prompt against goal and history.
func (v *Validator) Validate(ctx context.Context, goal goals.Goal, history conversation.History, prompt string) (conversation.ValidationResult, error) {
	user, err := ValidationPrompt(goal, history, prompt)
	if err != nil {
		return conversation.ValidationResult{}, err
	}
	out, err := v.llm.Complete(ctx, validationSystem, user, true)
	if err != nil {
		return conversation.ValidationResult{}, err
	}
	return parseValidation([]byte(out))
}

func parseValidation(data []byte) (conversation.ValidationResult, error) {
	var raw rawValidation
	if err := json.Unmarshal(conversation.StripCodeFence(data), &raw); err != nil {
		return conversation.ValidationResult{}, fmt.Errorf("decoding validation result: %w", err)
	}
	if raw.Valid == nil {
		return conversation.ValidationResult{}, errors.New("validation result missing validationResult")
	}
	if *raw.Valid {
		return conversation.ValidationResult{Valid: true}, nil
	}

	reason := conversation.ValidationReason{Next: conversation.NextQuestion}
	if len(raw.Reason) > 0 {
		var text string
		if err := json.Unmarshal(raw.Reason, &text); err == nil {
			reason.Response = text
		} else {
			_ = json.Unmarshal(raw.Reason, &reason)
		}
	}
	if reason.Next == "" {
		reason.Next = conversation.NextQuestion
	}
	if strings.TrimSpace(reason.Response) == "" {
		reason.Response = DefaultRejection
	}
	return conversation.ValidationResult{Valid: false, Reason: reason}, nil
}

// Summarizer condenses history before the workflow continues as new.
type Summarizer struct {
	llm Completer
}

// NewSummarizer returns a Summarizer backed by c.
func NewSummarizer(c Completer) *Summarizer {
	return &Summarizer{llm: c}
}

// Summarize returns a plain text summary of messages.
func (s *Summarizer) Summarize(ctx context.Context, goal goals.Goal, messages []conversation.Message) (string, error) {
	user, err := SummaryPrompt(goal, messages)
	if err != nil {
		return "", err
	}
	return s.llm.Complete(ctx, summarySystem, user, false)
}
