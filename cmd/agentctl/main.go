// Package main implements agentctl, a CLI for driving agent sessions through
// the gateway HTTP API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL of the agent gateway
	serverURL string
	// sessionID selects the session; empty means the gateway default
	sessionID string
	// rawJSON prints responses as JSON instead of text
	rawJSON bool

	version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentctl",
		Short: "CLI for agent gateway operations",
		Long: `agentctl drives agent sessions through the gateway HTTP API.
It starts sessions, sends prompts, confirms tool runs and reads history.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "agent gateway URL")
	root.PersistentFlags().StringVar(&sessionID, "session", "", "session id (gateway default when empty)")
	root.PersistentFlags().BoolVar(&rawJSON, "json", false, "print raw JSON responses")

	root.AddCommand(
		newStartCmd(),
		newPromptCmd(),
		newConfirmCmd(),
		newEndCmd(),
		newHistoryCmd(),
		newToolDataCmd(),
		newGoalCmd(),
		newGoalsCmd(),
		newStatusCmd(),
		newHealthCmd(),
	)
	return root
}
