package domain

import "context"

// Tool is the interface for assistant capabilities (file ops, screen
// control, vision, self-modification).
type Tool interface {
	Name() string
	Description() string
	// Sensitive tools require explicit user confirmation before execution.
	Sensitive() bool
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolSchema is the declarative description of a tool, shared read-only by
// the prompt builder and the orchestrator. Schemas are immutable after
// registration.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Sensitive   bool           `json:"sensitive,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}
