// Package workflows provides the Temporal workflow and activities that run
// one agent conversation per session.
//
// This file contains the types shared by the workflow, its activities and
// the gateway that signals and queries it.
package workflows

import (
	"github.com/fyrsmithlabs/tripagent/internal/conversation"
	"github.com/fyrsmithlabs/tripagent/internal/goals"
)

// Conversation types carried in workflow state and query results.
type (
	Message             = conversation.Message
	ConversationHistory = conversation.History
	ToolProposal        = conversation.ToolProposal
)

// Signal and query names. These are part of the gateway contract.
const (
	SignalUserPrompt = "user_prompt"
	SignalConfirm    = "confirm"
	SignalEndChat    = "end_chat"

	QueryConversationHistory = "get_conversation_history"
	QueryLatestToolData      = "get_latest_tool_data"
	QueryAgentGoal           = "get_agent_goal"
	QuerySessionStatus       = "get_session_status"
)

// WorkflowName is the registered name of AgentGoalWorkflow.
const WorkflowName = "AgentGoalWorkflow"

// Session sizing defaults.
const (
	DefaultMaxTurns     = 250
	DefaultKeepMessages = 20
)

// ShowConfirmEnv names the environment variable holding the confirmation
// policy.
const ShowConfirmEnv = "SHOW_CONFIRM"

// AgentGoalInput starts or continues a session.
type AgentGoalInput struct {
	Goal   goals.Goal      `json:"goal"`
	Params AgentGoalParams `json:"params"`
}

// AgentGoalParams carries seed state. A fresh session usually sets only
// PromptQueue; the remaining fields are filled when a session continues
// as new.
type AgentGoalParams struct {
	ConversationSummary string        `json:"conversation_summary,omitempty"`
	PromptQueue         []string      `json:"prompt_queue,omitempty"`
	History             []Message     `json:"history,omitempty"`
	Proposal            *ToolProposal `json:"proposal,omitempty"`
	WaitingForConfirm   bool          `json:"waiting_for_confirm,omitempty"`
	Confirmed           bool          `json:"confirmed,omitempty"`
	// RequireConfirmation is nil until the policy has been looked up.
	RequireConfirmation *bool `json:"require_confirmation,omitempty"`
	MaxTurns            int   `json:"max_turns,omitempty"`
	KeepMessages        int   `json:"keep_messages,omitempty"`
	Epoch               int   `json:"epoch,omitempty"`
}

// SessionStatus is returned by the get_session_status query.
type SessionStatus struct {
	Goal                string `json:"goal"`
	WaitingForConfirm   bool   `json:"waiting_for_confirm"`
	Confirmed           bool   `json:"confirmed"`
	ChatEnded           bool   `json:"chat_ended"`
	QueueLength         int    `json:"queue_length"`
	RequireConfirmation bool   `json:"require_confirmation"`
	HistoryLength       int    `json:"history_length"`
	Epoch               int    `json:"epoch"`
	Rounds              int    `json:"rounds"`
	LastError           string `json:"last_error,omitempty"`
}

// Activity inputs and outputs.

// ValidatePromptInput asks whether a user prompt fits the goal.
type ValidatePromptInput struct {
	Goal    goals.Goal          `json:"goal"`
	History ConversationHistory `json:"history"`
	Prompt  string              `json:"prompt"`
}

// PlanNextStepInput asks the planner for the next proposal.
type PlanNextStepInput struct {
	Goal    goals.Goal          `json:"goal"`
	History ConversationHistory `json:"history"`
	Prior   *ToolProposal       `json:"prior,omitempty"`
	Prompt  string              `json:"prompt"`
}

// ExecuteToolInput names a tool and its resolved arguments.
type ExecuteToolInput struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// SummarizeHistoryInput holds the messages leaving the current epoch.
type SummarizeHistoryInput struct {
	Goal     goals.Goal `json:"goal"`
	Messages []Message  `json:"messages"`
}

// EnvLookupInput names the policy variable and its default.
type EnvLookupInput struct {
	ShowConfirmEnvVar  string `json:"show_confirm_env_var"`
	ShowConfirmDefault bool   `json:"show_confirm_default"`
}

// EnvLookupOutput is the session's confirmation policy.
type EnvLookupOutput struct {
	ShowConfirm bool `json:"show_confirm"`
}
