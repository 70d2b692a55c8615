package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/fyrsmithlabs/tripagent/internal/conversation"
	"github.com/fyrsmithlabs/tripagent/internal/goals"
)

// ToolchainCompleteGuidance tells the model how to finish a goal.
const ToolchainCompleteGuidance = "If no more tools are needed (user_confirmed_tool_run has been run for all), set next='done' and tool=''."

var promptFuncs = template.FuncMap{
	"toolNames": func(tools []goals.ToolSpec) string {
		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.Name
		}
		return strings.Join(names, ", ")
	},
}

var agentPrompt = template.Must(template.New("agent").Funcs(promptFuncs).Parse(
	`You are an AI agent that helps fill required arguments for the tools described below.
You must respond with valid JSON ONLY, using the schema provided in the instructions.

=== Conversation History ===
This is the ongoing history to determine which tool and arguments to gather:
*BEGIN CONVERSATION HISTORY*
{{ .History }}
*END CONVERSATION HISTORY*
REMINDER: You can use the conversation history to infer arguments for the tools.

{{ with .Goal.ExampleConversation -}}
=== Example Conversation With These Tools ===
Use this example to understand how tools are invoked and arguments are gathered.
BEGIN EXAMPLE
{{ . }}
END EXAMPLE

{{ end -}}
=== Tools Definitions ===
There are {{ len .Goal.Tools }} available tools:
{{ toolNames .Goal.Tools }}
Goal: {{ .Goal.Description }}
Gather the necessary information for each tool in the sequence described above.
Only ask for arguments listed below. Do not add extra arguments.
{{ range .Goal.Tools }}
Tool name: {{ .Name }}
  Description: {{ .Description }}
  Required args:
{{- range .Arguments }}
    - {{ .Name }} ({{ .Type }}): {{ .Description }}
{{- end }}
{{ end }}
When all required args for a tool are known, you can propose next='confirm' to run it.

=== Instructions for JSON Generation ===
Your JSON format must be:
{
  "response": "<plain text>",
  "next": "<question|confirm|done>",
  "tool": "<tool_name or null>",
  "args": {
    "<arg1>": "<value1 or null>",
    "<arg2>": "<value2 or null>",
    ...
  }
}
1) If any required argument is missing, set next='question' and ask the user.
2) If all required arguments are known, set next='confirm' and specify the tool.
   The user will confirm before the tool is run.
3) {{ .Guidance }}
4) response should be short and user-friendly.

Guardrails (always remember!)
1) If any required argument is missing, set next='question' and ask the user.
1) ALWAYS ask a question in your response if next='question'.
2) ALWAYS set next='confirm' if you have arguments
 And respond with "let's proceed with <tool> (and any other useful info)"
 DON'T set next='confirm' if you have a question to ask.
EXAMPLE: If you have a question to ask, set next='question' and ask the user.
3) You can carry over arguments from one tool to another.
 EXAMPLE: If you asked for an account ID, then use the conversation history to infer that argument going forward.
4) If the latest agent message in the conversation history has force_confirm=false, you MUST check if the current tool contains userConfirmation. If it does, please ask the user to confirm details with the user. userConfirmation overrides force_confirm=false.
EXAMPLE: (force_confirm=false AND userConfirmation exists on tool) Would you like me to <run tool> with the following details: <details>?
{{ if .Prior }}
=== Validation Task ===
Validate and correct the following JSON if needed:
{{ .Prior }}

Check syntax, 'tool' validity, 'args' completeness, and set 'next' appropriately. Return ONLY corrected JSON.

Begin by validating the provided JSON if necessary.
{{- else }}
Begin by producing a valid JSON response for the next tool or question.
{{- end }}`))

var validationPrompt = template.Must(template.New("validation").Funcs(promptFuncs).Parse(
	`The agent goal and tools are as follows:
Description: {{ .Goal.Description }}
Available Tools: {{ toolNames .Goal.Tools }}
The conversation history to date is:
{{ .History }}

The user's prompt is: {{ .Prompt }}
Please validate if this prompt makes sense given the agent goal and conversation history.
If the prompt makes sense toward the goal then validationResult should be true.
If the prompt is wildly nonsensical or makes no sense toward the goal and current conversation history then validationResult should be false.
If the response is low content such as "yes" or "that's right" then the user is probably responding to a previous prompt.
Therefore examine it in the context of the conversation history to determine if it makes sense and return true if it makes sense.
Return ONLY a JSON object with the following structure:
  "validationResult": true/false,
  "validationFailedReason": an object in the format
    {"next": "question", "response": "<why the request does not fit and what the user should provide instead>"}
If validationResult is true, validationFailedReason must be an empty object {}.`))

const validationSystem = "You validate user input for a goal-driven assistant. You must respond with valid JSON ONLY."

var summaryPrompt = template.Must(template.New("summary").Parse(
	`Summarize the conversation below between a user and an assistant working toward this goal:
{{ .Goal.Description }}

Keep every fact needed to continue: cities, dates, prices, confirmed tool runs and their results,
and any question still waiting for an answer. Write plain text, no more than 200 words.

*BEGIN CONVERSATION*
{{ .History }}
*END CONVERSATION*`))

const summarySystem = "You compress long conversations into short factual summaries."

type promptData struct {
	Goal     goals.Goal
	History  string
	Guidance string
	Prior    string
	Prompt   string
}

// AgentPrompt renders the planner's system prompt. prior, when set, is the
// previous proposal the model is asked to validate and correct.
func AgentPrompt(goal goals.Goal, history conversation.History, prior *conversation.ToolProposal) (string, error) {
	data := promptData{Goal: goal, Guidance: ToolchainCompleteGuidance}

	var err error
	if data.History, err = indentJSON(history); err != nil {
		return "", err
	}
	if prior != nil {
		if data.Prior, err = indentJSON(prior); err != nil {
			return "", err
		}
	}
	return render(agentPrompt, data)
}

// ValidationPrompt renders the validator's user prompt.
func ValidationPrompt(goal goals.Goal, history conversation.History, prompt string) (string, error) {
	h, err := indentJSON(history)
	if err != nil {
		return "", err
	}
	return render(validationPrompt, promptData{Goal: goal, History: h, Prompt: prompt})
}

// SummaryPrompt renders the summarizer's user prompt.
func SummaryPrompt(goal goals.Goal, messages []conversation.Message) (string, error) {
	h, err := indentJSON(messages)
	if err != nil {
		return "", err
	}
	return render(summaryPrompt, promptData{Goal: goal, History: h})
}

func indentJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding prompt data: %w", err)
	}
	return string(b), nil
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
