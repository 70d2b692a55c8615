package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tripagent/internal/conversation"
	"github.com/fyrsmithlabs/tripagent/internal/goals"
)

// MessageResponse matches internal/http MessageResponse
type MessageResponse struct {
	Message string `json:"message"`
}

// StartResponse matches internal/http StartResponse
type StartResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id,omitempty"`
	Goal      string `json:"goal"`
}

// GoalsResponse matches internal/http GoalsResponse
type GoalsResponse struct {
	Default string `json:"default"`
	Goals   []struct {
		ID          string   `json:"id"`
		AgentName   string   `json:"agent_name"`
		Description string   `json:"agent_friendly_description"`
		Tools       []string `json:"tools"`
	} `json:"goals"`
}

// HealthResponse matches internal/http HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

func newStartCmd() *cobra.Command {
	var fresh bool
	var goal string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a session",
		Long: `Start a session seeded with the goal's starter prompt.

Examples:
  # Start the default session
  agentctl start

  # Start a session with a fresh random id
  agentctl start --new`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g := newGateway()
			if fresh {
				g.session = uuid.NewString()
			}
			q := url.Values{}
			if goal != "" {
				q.Set("goal", goal)
			}

			var resp StartResponse
			if err := g.call(cmd.Context(), http.MethodPost, "/start-workflow", q, &resp); err != nil {
				return err
			}
			if rawJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s started (goal %s)\n", resp.SessionID, resp.Goal)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fresh, "new", false, "start a session with a new random id")
	cmd.Flags().StringVar(&goal, "goal", "", "goal id (gateway default when empty)")
	return cmd
}

func newPromptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompt <text>",
		Short: "Send a prompt to the session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"prompt": {strings.Join(args, " ")}}
			return sendMessage(cmd, "/send-prompt", q)
		},
	}
}

func newConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm",
		Short: "Confirm the pending tool run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendMessage(cmd, "/confirm", nil)
		},
	}
}

func newEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendMessage(cmd, "/end-chat", nil)
		},
	}
}

func sendMessage(cmd *cobra.Command, path string, q url.Values) error {
	var resp MessageResponse
	if err := newGateway().call(cmd.Context(), http.MethodPost, path, q, &resp); err != nil {
		return err
	}
	if resp.Message == "" {
		resp.Message = "No session to signal."
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	return nil
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the conversation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var history conversation.History
			if err := newGateway().call(cmd.Context(), http.MethodGet, "/get-conversation-history", nil, &history); err != nil {
				return err
			}
			if rawJSON {
				return printJSON(cmd.OutOrStdout(), history)
			}
			printHistory(cmd.OutOrStdout(), history)
			return nil
		},
	}
}

func newToolDataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tool-data",
		Short: "Print the latest tool proposal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var proposal *conversation.ToolProposal
			if err := newGateway().call(cmd.Context(), http.MethodGet, "/get-latest-tool-data", nil, &proposal); err != nil {
				return err
			}
			if proposal == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No proposal yet.")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), proposal)
		},
	}
}

func newGoalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goal",
		Short: "Print the session's goal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var goal goals.Goal
			if err := newGateway().call(cmd.Context(), http.MethodGet, "/get-agent-goal", nil, &goal); err != nil {
				return err
			}
			if rawJSON {
				return printJSON(cmd.OutOrStdout(), goal)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n%s\n", goal.AgentName, goal.ID, goal.Description)
			for _, t := range goal.Tools {
				fmt.Fprintf(out, "  - %s: %s\n", t.Name, t.Description)
			}
			return nil
		},
	}
}

func newGoalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goals",
		Short: "List the goals the gateway can start",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp GoalsResponse
			if err := newGateway().call(cmd.Context(), http.MethodGet, "/goals", nil, &resp); err != nil {
				return err
			}
			if rawJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			for _, g := range resp.Goals {
				marker := " "
				if g.ID == resp.Default {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s [%s]\n", marker, g.ID, g.AgentName, strings.Join(g.Tools, ", "))
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the session's orchestration state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status json.RawMessage
			if err := newGateway().call(cmd.Context(), http.MethodGet, "/get-session-status", nil, &status); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := newGateway().call(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printHistory renders one line per message. Agent turns show the response
// text and the planner's decision.
func printHistory(w io.Writer, h conversation.History) {
	if len(h.Messages) == 0 {
		fmt.Fprintln(w, "No messages yet.")
		return
	}
	for _, m := range h.Messages {
		fmt.Fprintf(w, "[%s] %s\n", m.Actor, describeResponse(m.Response))
	}
}

func describeResponse(r any) string {
	switch v := r.(type) {
	case string:
		return v
	case map[string]any:
		text, _ := v["response"].(string)
		next, _ := v["next"].(string)
		tool, _ := v["tool"].(string)
		if text == "" && next == "" {
			break
		}
		switch {
		case tool != "":
			return fmt.Sprintf("%s (next: %s, tool: %s)", text, next, tool)
		case next != "":
			return fmt.Sprintf("%s (next: %s)", text, next)
		}
		return text
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprint(r)
	}
	return string(data)
}
