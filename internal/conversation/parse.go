package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidProposal is returned when model output cannot be used as a
// ToolProposal.
var ErrInvalidProposal = errors.New("invalid tool proposal")

type rawProposal struct {
	Next     string         `json:"next"`
	Tool     any            `json:"tool"`
	Response any            `json:"response"`
	Args     map[string]any `json:"args"`
}

// ParseProposal decodes and checks model output. Code fences around the
// JSON are tolerated; a null or "none" tool means no tool.
func ParseProposal(data []byte) (ToolProposal, error) {
	var raw rawProposal
	if err := json.Unmarshal(StripCodeFence(data), &raw); err != nil {
		return ToolProposal{}, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}

	p := ToolProposal{
		Next: NextStep(strings.ToLower(strings.TrimSpace(raw.Next))),
		Args: raw.Args,
	}
	if p.Args == nil {
		p.Args = map[string]any{}
	}

	switch v := raw.Tool.(type) {
	case nil:
	case string:
		if t := strings.TrimSpace(v); !strings.EqualFold(t, "null") && !strings.EqualFold(t, "none") {
			p.Tool = t
		}
	default:
		return ToolProposal{}, fmt.Errorf("%w: tool must be a string, got %T", ErrInvalidProposal, raw.Tool)
	}

	switch v := raw.Response.(type) {
	case nil:
	case string:
		p.Response = v
	default:
		b, _ := json.Marshal(v)
		p.Response = string(b)
	}

	switch p.Next {
	case NextQuestion, NextDone:
	case NextConfirm:
		if p.Tool == "" {
			return ToolProposal{}, fmt.Errorf("%w: next=confirm requires a tool", ErrInvalidProposal)
		}
	default:
		return ToolProposal{}, fmt.Errorf("%w: unknown next %q", ErrInvalidProposal, raw.Next)
	}
	return p, nil
}

// StripCodeFence removes a surrounding ```json ... ``` block if present.
func StripCodeFence(data []byte) []byte {
	s := strings.TrimSpace(string(data))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
