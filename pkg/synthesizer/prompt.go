package synthesizer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildPrompt assembles the per-turn analysis prompt: the raw user text, the
// session's workflow position, and the full collected-parameter snapshot.
// The response vocabulary is documented but deliberately not enforced; the
// synthesizer's mapping table absorbs whatever the oracle actually returns.
func BuildPrompt(userText string, snapshot Snapshot) string {
	var b strings.Builder

	b.WriteString("Analyze this user request and reply with a structured result.\n\n")
	fmt.Fprintf(&b, "The user said: %q\n", userText)

	if snapshot.Active() {
		fmt.Fprintf(&b, "\nConversation context:\n")
		fmt.Fprintf(&b, "- current task: %s\n", snapshot.WorkflowName)
		fmt.Fprintf(&b, "- step %d of %d: %s\n", snapshot.StepIndex+1, snapshot.StepCount, snapshot.StepName)
		fmt.Fprintf(&b, "- required parameters: %s\n", strings.Join(snapshot.RequiredParams, ", "))

		collected, err := json.MarshalIndent(snapshot.CollectedParameters, "", "  ")
		if err == nil {
			fmt.Fprintf(&b, "\nInformation collected so far:\n%s\n", collected)
		}
	} else {
		b.WriteString("\nConversation context: this is the start of a new conversation.\n")
	}

	b.WriteString(`
Classify the request (douyin content download and creation, video publishing,
copy generation, or casual conversation), extract every piece of relevant
information the user mentioned (account, platform, file path, title,
description, links, topic), and decide the next step: start a new task,
continue the current task, execute (information complete), ask for more
information, or reply conversationally.

Respond with a single JSON object:

{
  "workflow_type": "the task type",
  "action": "the suggested next step",
  "parameters": {"account": "...", "platform": "...", "video_file": "...", "title": "...", "description": "..."},
  "missing_parameters": ["list of missing parameter names"],
  "message": "the reply to show the user",
  "reasoning": "your analysis"
}

Keep all previously collected information and merge it with anything new.
`)

	return b.String()
}
