// Package goals holds the catalog of agent goals. A goal names the
// objective an agent pursues and the ordered chain of tools it uses to get
// there. Goals are immutable once loaded.
package goals

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGoalNotFound is returned when a goal id is not in the catalog.
var ErrGoalNotFound = errors.New("goal not found")

// Goal describes one agent objective and its tool chain.
type Goal struct {
	ID                  string     `toml:"id" json:"id"`
	CategoryTag         string     `toml:"category_tag" json:"category_tag"`
	AgentName           string     `toml:"agent_name" json:"agent_name"`
	Description         string     `toml:"description" json:"agent_friendly_description"`
	Instructions        string     `toml:"instructions" json:"instructions"`
	StarterPrompt       string     `toml:"starter_prompt" json:"starter_prompt"`
	ExampleConversation string     `toml:"example_conversation" json:"example_conversation_history"`
	Tools               []ToolSpec `toml:"tools" json:"tools"`
}

// ToolSpec describes a tool the agent may call.
type ToolSpec struct {
	Name        string         `toml:"name" json:"name"`
	Description string         `toml:"description" json:"description"`
	Arguments   []ArgumentSpec `toml:"arguments" json:"arguments"`
}

// ArgumentSpec describes one tool argument. Type is a semantic tag for the
// planner ("string", "ISO8601", "float"), not a Go type.
type ArgumentSpec struct {
	Name        string `toml:"name" json:"name"`
	Type        string `toml:"type" json:"type"`
	Description string `toml:"description" json:"description"`
	Optional    bool   `toml:"optional" json:"optional,omitempty"`
}

// Tool returns the tool named name.
func (g Goal) Tool(name string) (ToolSpec, bool) {
	for _, t := range g.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolSpec{}, false
}

// ToolNames returns the tool names in chain order.
func (g Goal) ToolNames() []string {
	names := make([]string, len(g.Tools))
	for i, t := range g.Tools {
		names[i] = t.Name
	}
	return names
}

// Validate checks that the goal can drive a session.
func (g Goal) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return errors.New("goal id is required")
	}
	if len(g.Tools) == 0 {
		return fmt.Errorf("goal %s: at least one tool is required", g.ID)
	}
	seen := make(map[string]bool, len(g.Tools))
	for _, t := range g.Tools {
		if t.Name == "" {
			return fmt.Errorf("goal %s: tool name is required", g.ID)
		}
		if seen[t.Name] {
			return fmt.Errorf("goal %s: duplicate tool %q", g.ID, t.Name)
		}
		seen[t.Name] = true

		args := make(map[string]bool, len(t.Arguments))
		for _, a := range t.Arguments {
			if a.Name == "" {
				return fmt.Errorf("goal %s: tool %s has an unnamed argument", g.ID, t.Name)
			}
			if args[a.Name] {
				return fmt.Errorf("goal %s: tool %s: duplicate argument %q", g.ID, t.Name, a.Name)
			}
			args[a.Name] = true
		}
	}
	return nil
}

// Required returns the names of required arguments in declaration order.
func (t ToolSpec) Required() []string {
	var out []string
	for _, a := range t.Arguments {
		if !a.Optional {
			out = append(out, a.Name)
		}
	}
	return out
}
