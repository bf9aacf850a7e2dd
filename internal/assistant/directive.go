package assistant

import (
	"encoding/json"
	"strings"
)

// toolCallDirective is the structured payload a model reply may carry to
// request a tool invocation.
type toolCallDirective struct {
	Name string
	Args map[string]any
}

// decodeDirective attempts to parse a model reply as the exact
// {"tool_call": {"name": ..., "args": ...}} shape. Any parse failure means
// the reply is ordinary text: the raw reply is never lost and decoding never
// fails hard.
func decodeDirective(reply string) (*toolCallDirective, bool) {
	text := strings.TrimSpace(reply)
	text = stripCodeFence(text)

	var envelope struct {
		ToolCall *struct {
			Name string         `json:"name"`
			Args map[string]any `json:"args"`
		} `json:"tool_call"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, false
	}
	if envelope.ToolCall == nil || envelope.ToolCall.Name == "" {
		return nil, false
	}

	args := envelope.ToolCall.Args
	if args == nil {
		args = make(map[string]any)
	}
	return &toolCallDirective{Name: envelope.ToolCall.Name, Args: args}, true
}

// stripCodeFence removes a surrounding markdown code fence. Some models wrap
// the directive in ```json fences despite the instruction.
func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
		return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
	}
	return content
}
