package workflows

import (
	"strings"

	"github.com/fyrsmithlabs/tripagent/internal/goals"
)

// ResolveArguments returns the required arguments of the proposal's tool
// that are absent or empty in its args, in declaration order. A nil result
// means the proposal can go to confirmation. Tools the goal does not
// declare have no requirements here; dispatch reports them.
func ResolveArguments(goal goals.Goal, proposal ToolProposal) []string {
	spec, ok := goal.Tool(proposal.Tool)
	if !ok {
		return nil
	}
	var missing []string
	for _, name := range spec.Required() {
		if isEmptyArg(proposal.Args[name]) {
			missing = append(missing, name)
		}
	}
	return missing
}

func isEmptyArg(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(val)
		return s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none")
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}
