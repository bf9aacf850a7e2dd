package assistant

import (
	"encoding/json"
	"strings"
)

// controlKind classifies the control commands the transport layer can feed
// into ProcessText alongside ordinary text.
type controlKind int

const (
	ctrlNone controlKind = iota
	ctrlConfirm
	ctrlCancel
	ctrlTool
)

// control is a parsed control command. For ctrlTool, toolName and toolArgs
// carry the direct-invocation request.
type control struct {
	kind     controlKind
	toolName string
	toolArgs map[string]any
}

const toolCommandPrefix = "/tool "

// parseControl recognizes /confirm, /cancel (case-insensitive,
// whitespace-trimmed) and the "/tool <name> <json-args>" shorthand.
// Malformed JSON arguments silently degrade to empty arguments.
func parseControl(text string) control {
	trimmed := strings.TrimSpace(text)

	switch strings.ToLower(trimmed) {
	case "/confirm":
		return control{kind: ctrlConfirm}
	case "/cancel":
		return control{kind: ctrlCancel}
	}

	if strings.HasPrefix(trimmed, toolCommandPrefix) {
		rest := strings.TrimSpace(trimmed[len(toolCommandPrefix):])
		name, rawArgs := splitNameArgs(rest)
		if name == "" {
			return control{kind: ctrlNone}
		}
		args := make(map[string]any)
		if rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				args = make(map[string]any)
			}
		}
		return control{kind: ctrlTool, toolName: name, toolArgs: args}
	}

	return control{kind: ctrlNone}
}

// splitNameArgs separates the tool name from the optional JSON argument
// blob that follows it.
func splitNameArgs(s string) (name, rawArgs string) {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}
