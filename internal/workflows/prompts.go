package workflows

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/tripagent/internal/conversation"
)

const toolCompletionTemplate = `### The '%s' tool completed successfully
with %s.
INSTRUCTIONS: Parse this tool result as plain text, and use the system prompt
containing the list of tools in sequence and the conversation history (and
previous tool_results) to figure out next steps, if any.
You will need to use the tool_results to auto-fill arguments for subsequent
tools and also to figure out if all tools have been run.
{"next": "<question|confirm|done>", "tool": "<tool_name or null>", "args": {"<arg1>": "<value1 or null>", "<arg2>": "<value2 or null>"}, "response": "<plain text (can include \n line breaks)>"}
ONLY return those json keys (next, tool, args, response), nothing else.
Next should be "question" if the tool is not the last one in the sequence.
Next should be "done" if the user is asking to be done with the chat.`

const toolFailedTemplate = `### The '%s' tool failed with the error: %s.
INSTRUCTIONS: Tell the user in plain text that the tool could not complete and why,
then ask whether they want to change the details and try again.
{"next": "question", "tool": null, "args": {}, "response": "<plain text>"}
ONLY return those json keys (next, tool, args, response), nothing else.`

const missingArgsTemplate = "### INSTRUCTIONS set next='question', combine this response response='%s' " +
	"and following missing arguments for tool %s: %s. " +
	"Only provide a valid JSON response without any comments or metadata."

// StarterPrompt returns the system prompt that opens a session for a goal.
func StarterPrompt(starter string) string {
	return conversation.SystemPromptPrefix + " " + starter
}

func toolCompletionPrompt(tool string, result map[string]any) string {
	b, err := json.Marshal(result)
	if err != nil {
		b = []byte(fmt.Sprint(result))
	}
	return fmt.Sprintf(toolCompletionTemplate, tool, b)
}

func toolFailedPrompt(tool, message string) string {
	return fmt.Sprintf(toolFailedTemplate, tool, message)
}

func missingArgsPrompt(proposal ToolProposal, missing []string) string {
	return fmt.Sprintf(missingArgsTemplate, proposal.Response, proposal.Tool, "["+strings.Join(missing, ", ")+"]")
}
