package workflows

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/tripagent/internal/conversation"
)

// ErrEmptyField indicates a required field is empty.
var ErrEmptyField = errors.New("required field is empty")

// Validate checks that the input can seed a session: the goal is well
// formed, a carried proposal names one of the goal's tools, and a session
// waiting for confirmation has a confirm proposal to wait on.
func (in AgentGoalInput) Validate() error {
	if err := in.Goal.Validate(); err != nil {
		return err
	}

	p := in.Params
	if p.Proposal != nil && p.Proposal.Tool != "" {
		if _, ok := in.Goal.Tool(p.Proposal.Tool); !ok {
			return fmt.Errorf("pending proposal names tool %q outside goal %s", p.Proposal.Tool, in.Goal.ID)
		}
	}
	if p.WaitingForConfirm && (p.Proposal == nil || p.Proposal.Next != conversation.NextConfirm || p.Proposal.Tool == "") {
		return errors.New("waiting for confirmation without a pending confirm proposal")
	}
	if p.MaxTurns < 0 || p.KeepMessages < 0 {
		return fmt.Errorf("max turns and keep messages cannot be negative (got %d, %d)", p.MaxTurns, p.KeepMessages)
	}
	return nil
}

// Validate checks the validator input.
func (in ValidatePromptInput) Validate() error {
	if in.Goal.ID == "" {
		return fmt.Errorf("%w: Goal.ID", ErrEmptyField)
	}
	return nil
}

// Validate checks the planner input.
func (in PlanNextStepInput) Validate() error {
	if in.Goal.ID == "" {
		return fmt.Errorf("%w: Goal.ID", ErrEmptyField)
	}
	if len(in.Goal.Tools) == 0 {
		return fmt.Errorf("%w: Goal.Tools", ErrEmptyField)
	}
	return nil
}

// Validate checks the tool input.
func (in ExecuteToolInput) Validate() error {
	if in.Tool == "" {
		return fmt.Errorf("%w: Tool", ErrEmptyField)
	}
	return nil
}

// inputError reports invalid activity input. Retrying cannot fix it.
func inputError(err error) error {
	return temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("%v: %v", ErrInvalidInput, err), ErrTypeInvalidInput, err)
}
