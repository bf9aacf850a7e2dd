package domain

import "context"

// Generator is the language-model collaborator: one text prompt in, one text
// reply out. Transport errors are returned as-is and wrapped by the caller.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// StreamingGenerator is an optional extension for generators that can
// deliver the reply incrementally. The returned channel yields a finite,
// non-restartable sequence of chunks whose concatenation equals the full
// reply; it is closed after the last chunk.
type StreamingGenerator interface {
	Generator
	GenerateStream(ctx context.Context, prompt string) (<-chan string, error)
}

// AuditEntry records one security-relevant orchestrator event.
type AuditEntry struct {
	ID       string // uuid, assigned by the store when empty
	Action   string // tool_exec | cancel | auto_cancel
	ToolName string
	Args     string
	Result   string // ok | error | denied
	Details  string
}
