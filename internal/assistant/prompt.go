package assistant

import (
	"encoding/json"
	"strings"

	"alfred/internal/domain"
)

// toolInstruction is the strict directive appended to normal-turn prompts.
// The model is expected (not guaranteed) to follow it; violations degrade to
// plain-text handling in the orchestrator.
const toolInstruction = "\n\nIf you want to call a tool, respond with ONLY a JSON object exactly like:\n" +
	`{"tool_call": {"name": "<tool_name>", "args": { ... }}}` + "\n" +
	"Do not add other commentary when returning a tool_call. If no tool is needed, respond with a normal assistant text reply."

// PromptBuilder renders the system prompt, conversation history, and the new
// user line into a single prompt string. Rendering is deterministic: turn
// order in the history defines line order.
type PromptBuilder struct{}

// Build renders the base prompt: system line (when present), one
// "Role: content" line per history turn, then the new user line.
func (PromptBuilder) Build(systemPrompt string, history []domain.Turn, userText string) string {
	var parts []string
	if systemPrompt != "" {
		parts = append(parts, "System: "+systemPrompt)
	}
	for _, turn := range history {
		parts = append(parts, capitalizeRole(turn.Role)+": "+turn.Content)
	}
	parts = append(parts, "User: "+userText)
	return strings.Join(parts, "\n")
}

// BuildWithTools appends the serialized tool catalogue and the tool-call
// directive to the base prompt. Used for normal-turn processing only, never
// for confirm/cancel replay.
func (b PromptBuilder) BuildWithTools(systemPrompt string, history []domain.Turn, userText string, catalogue []domain.ToolSchema) string {
	prompt := b.Build(systemPrompt, history, userText)

	block, err := json.MarshalIndent(catalogue, "", "  ")
	if err != nil {
		block = []byte("[]")
	}
	return prompt + "\n\nAvailable tools (name -> schema):\n" + string(block) + toolInstruction
}

// BuildFollowup renders the prompt for the second model call after a tool
// ran: the base prompt seeded with the original triggering user text, plus
// the serialized tool result. The tool catalogue is deliberately omitted.
func (b PromptBuilder) BuildFollowup(systemPrompt string, history []domain.Turn, originUserText string, result domain.Result) string {
	return b.Build(systemPrompt, history, originUserText) + "\n\nTool result:\n" + result.JSON()
}

func capitalizeRole(r domain.Role) string {
	s := string(r)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
