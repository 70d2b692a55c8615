package conversation

import (
	"strings"
)

// Actor identifies who produced a message.
type Actor string

const (
	ActorUser             Actor = "user"
	ActorAgent            Actor = "agent"
	ActorConfirmedToolRun Actor = "user_confirmed_tool_run"
	ActorToolResult       Actor = "tool_result"
	ActorSummary          Actor = "conversation_summary"
)

// SystemPromptPrefix marks prompts authored by the agent itself rather
// than typed by the user. Such prompts skip validation.
const SystemPromptPrefix = "###"

// IsSystemPrompt reports whether prompt was synthesized by the agent.
func IsSystemPrompt(prompt string) bool {
	return strings.HasPrefix(prompt, SystemPromptPrefix)
}

// Message is one history entry. Response is free text or a JSON-like
// mapping.
type Message struct {
	Actor    Actor `json:"actor"`
	Response any   `json:"response"`
}

// History is the ordered conversation of one epoch.
type History struct {
	Messages []Message `json:"messages"`
}

// Len returns the number of messages.
func (h History) Len() int {
	return len(h.Messages)
}

// Clone returns a history that shares no slice with h. Messages are
// immutable once appended, so their payloads are not copied.
func (h History) Clone() History {
	msgs := make([]Message, len(h.Messages))
	copy(msgs, h.Messages)
	return History{Messages: msgs}
}

// Tail returns a copy of the last n messages.
func (h History) Tail(n int) []Message {
	if n <= 0 {
		return []Message{}
	}
	start := len(h.Messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(h.Messages)-start)
	copy(out, h.Messages[start:])
	return out
}

// NextStep is the planner's decision about what happens next.
type NextStep string

const (
	NextQuestion NextStep = "question"
	NextConfirm  NextStep = "confirm"
	NextDone     NextStep = "done"

	// NextConfirmedRun marks the audit copy of a proposal the user confirmed.
	NextConfirmedRun NextStep = "user_confirmed_tool_run"
)

// ToolProposal is the planner's structured decision.
type ToolProposal struct {
	Next         NextStep       `json:"next"`
	Tool         string         `json:"tool"`
	Response     string         `json:"response"`
	Args         map[string]any `json:"args"`
	ForceConfirm bool           `json:"force_confirm"`
}

// Clone returns a copy whose Args map can be modified independently.
func (p ToolProposal) Clone() ToolProposal {
	c := p
	if p.Args != nil {
		c.Args = make(map[string]any, len(p.Args))
		for k, v := range p.Args {
			c.Args[k] = v
		}
	}
	return c
}

// ValidationResult is the validator's verdict on a user prompt.
type ValidationResult struct {
	Valid  bool             `json:"validationResult"`
	Reason ValidationReason `json:"validationFailedReason"`
}

// ValidationReason explains a rejection in the same shape as a proposal
// so clients render it like any other agent turn.
type ValidationReason struct {
	Next     NextStep `json:"next"`
	Response string   `json:"response"`
}
