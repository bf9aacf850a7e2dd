// Package assistant implements the tool-call orchestration and confirmation
// state machine: it forwards user text to the language model, detects
// embedded tool-call directives, gates sensitive tools behind explicit
// confirmation, and feeds tool results back for a final reply.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"alfred/internal/domain"
	"alfred/internal/metrics"
	"alfred/internal/security"
	"alfred/internal/tool"
)

const (
	noPendingConfirmReply = "No pending action to confirm."
	noPendingCancelReply  = "No pending action to cancel."
	canceledReply         = "Pending tool call canceled."
)

var (
	modelCalls = metrics.Collector.Counter("alfred_model_calls_total",
		"Total language-model invocations")
	toolExecs = metrics.Collector.Counter("alfred_tool_executions_total",
		"Total tool executions")
	confirmations = metrics.Collector.Counter("alfred_confirmations_total",
		"Confirmed sensitive tool calls")
	cancellations = metrics.Collector.Counter("alfred_cancellations_total",
		"Canceled sensitive tool calls")
	modelLatency = metrics.Collector.Histogram("alfred_model_latency_seconds",
		"Language-model call latency", []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60})
)

// PendingCall is a proposed, unconfirmed sensitive tool invocation held
// until the user sends /confirm or /cancel. At most one exists per
// assistant at any time.
type PendingCall struct {
	Name           string
	Args           map[string]any
	OriginUserText string
}

// Assistant owns one conversation and its confirmation state. ProcessText
// is not safe for concurrent invocation; callers serialize through the
// session manager.
type Assistant struct {
	mu           sync.Mutex
	provider     domain.Generator
	tools        *tool.Registry
	auditor      *security.Auditor
	prompt       PromptBuilder
	logger       *slog.Logger
	systemPrompt string
	conversation []domain.Turn
	pending      *PendingCall
}

// Config holds the assistant's collaborators.
type Config struct {
	Provider     domain.Generator
	Tools        *tool.Registry
	Auditor      *security.Auditor
	Logger       *slog.Logger
	SystemPrompt string
}

func New(cfg Config) *Assistant {
	return &Assistant{
		provider:     cfg.Provider,
		tools:        cfg.Tools,
		auditor:      cfg.Auditor,
		prompt:       PromptBuilder{},
		logger:       cfg.Logger,
		systemPrompt: cfg.SystemPrompt,
	}
}

// SetSystemPrompt replaces the process-wide system prompt for this session.
func (a *Assistant) SetSystemPrompt(prompt string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.systemPrompt = prompt
}

// Reset discards the conversation and any pending tool call.
func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversation = nil
	a.pending = nil
}

// History returns a copy of the conversation turns.
func (a *Assistant) History() []domain.Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Turn, len(a.conversation))
	copy(out, a.conversation)
	return out
}

// Pending returns the pending sensitive tool call, or nil.
func (a *Assistant) Pending() *PendingCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return nil
	}
	p := *a.pending
	return &p
}

// ProcessText drives one full cycle of the state machine for a complete
// (non-streaming) reply.
func (a *Assistant) ProcessText(ctx context.Context, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ctl := parseControl(text); ctl.kind {
	case ctrlConfirm:
		return a.handleConfirm(ctx)
	case ctrlCancel:
		return a.handleCancel(ctx), nil
	case ctrlTool:
		return a.handleDirectTool(ctx, ctl), nil
	default:
		return a.handleText(ctx, text)
	}
}

// ProcessStream is the streaming variant: control commands still return a
// complete text reply, and normal turns yield the model reply as a chunk
// stream. Tool-call directives are not detected in streaming mode; the raw
// reply streams through as text.
func (a *Assistant) ProcessStream(ctx context.Context, text string) (domain.Reply, error) {
	if ctl := parseControl(text); ctl.kind != ctrlNone {
		reply, err := a.ProcessText(ctx, text)
		if err != nil {
			return domain.Reply{}, err
		}
		return domain.TextReply(reply), nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending != nil {
		a.autoCancelPending(ctx, text)
	}

	a.conversation = append(a.conversation, domain.Turn{Role: domain.RoleUser, Content: text})
	prompt := a.prompt.BuildWithTools(a.systemPrompt, a.conversation[:len(a.conversation)-1], text, a.tools.Schemas())

	chunks, err := a.generateStream(ctx, prompt)
	if err != nil {
		return domain.Reply{}, err
	}

	// Placeholder turn, patched with the concatenated text once the stream
	// is fully consumed.
	a.conversation = append(a.conversation, domain.Turn{Role: domain.RoleAssistant})
	placeholder := len(a.conversation) - 1

	out := make(chan string)
	go func() {
		defer close(out)
		var full []byte
		// An abandoned stream patches whatever accumulated, so the history
		// never keeps a permanently empty assistant turn.
		defer func() {
			a.mu.Lock()
			// A Reset during the stream drops the placeholder; skip the patch.
			if placeholder < len(a.conversation) && a.conversation[placeholder].Role == domain.RoleAssistant {
				a.conversation[placeholder].Content = string(full)
			}
			a.mu.Unlock()
		}()
		for chunk := range chunks {
			full = append(full, chunk...)
			select {
			case out <- chunk:
			case <-ctx.Done():
				// Drain the source so the generator goroutine can exit.
				for range chunks {
				}
				return
			}
		}
	}()
	return domain.StreamReply(out), nil
}

// handleConfirm consumes the pending call, executes it, and asks the model
// for the final reply seeded with the tool result. With nothing pending it
// is a pure no-op: no turns appended, no executor call.
func (a *Assistant) handleConfirm(ctx context.Context) (string, error) {
	if a.pending == nil {
		return noPendingConfirmReply, nil
	}

	call := *a.pending
	a.pending = nil
	confirmations.Inc()

	result := a.executeTool(ctx, call.Name, call.Args, "confirm")
	a.conversation = append(a.conversation, domain.Turn{Role: domain.RoleTool, Content: result.JSON()})

	return a.finishToolTurn(ctx, call.OriginUserText, result)
}

// handleCancel discards the pending call. Calling it twice is safe: the
// second call is an informational no-op.
func (a *Assistant) handleCancel(ctx context.Context) string {
	if a.pending == nil {
		return noPendingCancelReply
	}
	call := a.pending
	a.pending = nil
	cancellations.Inc()
	a.audit(ctx, domain.AuditEntry{
		Action:   "cancel",
		ToolName: call.Name,
		Args:     marshalArgs(call.Args),
		Result:   "denied",
		Details:  "user canceled pending tool call",
	})
	return canceledReply
}

// handleDirectTool executes the /tool shorthand immediately. This is an
// operator path: it bypasses sensitivity gating and never touches the
// pending call.
func (a *Assistant) handleDirectTool(ctx context.Context, ctl control) string {
	result := a.executeTool(ctx, ctl.toolName, ctl.toolArgs, "direct")
	serialized := result.JSON()

	record := fmt.Sprintf("[tool-call] %s %s", ctl.toolName, marshalArgs(ctl.toolArgs))
	a.conversation = append(a.conversation,
		domain.Turn{Role: domain.RoleUser, Content: record},
		domain.Turn{Role: domain.RoleAssistant, Content: serialized},
	)
	return serialized
}

// handleText is the normal-turn path: prompt the model with the tool
// catalogue, then branch on whether the reply carries a tool-call directive.
func (a *Assistant) handleText(ctx context.Context, text string) (string, error) {
	if a.pending != nil {
		a.autoCancelPending(ctx, text)
	}

	a.conversation = append(a.conversation, domain.Turn{Role: domain.RoleUser, Content: text})
	prompt := a.prompt.BuildWithTools(a.systemPrompt, a.conversation[:len(a.conversation)-1], text, a.tools.Schemas())

	reply, err := a.generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	directive, ok := decodeDirective(reply)
	if !ok {
		// Most common path: plain text reply.
		a.conversation = append(a.conversation, domain.Turn{Role: domain.RoleAssistant, Content: reply})
		return reply, nil
	}

	// Record the intended call before anything executes.
	intent := fmt.Sprintf("[tool_call] %s", marshalCall(directive.Name, directive.Args))
	a.conversation = append(a.conversation, domain.Turn{Role: domain.RoleAssistant, Content: intent})

	// Unknown tools are treated as not sensitive here; the executor reports
	// the unknown_tool error on execution.
	if a.tools.Sensitive(directive.Name) {
		a.pending = &PendingCall{Name: directive.Name, Args: directive.Args, OriginUserText: text}
		a.logger.Info("sensitive tool call held for confirmation", "tool", directive.Name)
		return fmt.Sprintf(
			"Assistant wants to run sensitive tool %q with args %s.\nReply '/confirm' to proceed or '/cancel' to abort.",
			directive.Name, marshalArgs(directive.Args),
		), nil
	}

	result := a.executeTool(ctx, directive.Name, directive.Args, "auto")
	a.conversation = append(a.conversation, domain.Turn{Role: domain.RoleTool, Content: result.JSON()})

	return a.finishToolTurn(ctx, text, result)
}

// finishToolTurn asks the model for the final natural-language reply seeded
// with the tool result, and appends it as an assistant turn.
func (a *Assistant) finishToolTurn(ctx context.Context, originUserText string, result domain.Result) (string, error) {
	prompt := a.prompt.BuildFollowup(a.systemPrompt, a.conversation, originUserText, result)
	reply, err := a.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	a.conversation = append(a.conversation, domain.Turn{Role: domain.RoleAssistant, Content: reply})
	return reply, nil
}

// autoCancelPending discards a stale pending call when a new normal message
// arrives while a confirmation is outstanding. The abandonment is recorded
// in the audit trail rather than silently dropped.
func (a *Assistant) autoCancelPending(ctx context.Context, newText string) {
	call := a.pending
	a.pending = nil
	cancellations.Inc()
	a.logger.Info("pending tool call auto-canceled by new message", "tool", call.Name)
	a.audit(ctx, domain.AuditEntry{
		Action:   "auto_cancel",
		ToolName: call.Name,
		Args:     marshalArgs(call.Args),
		Result:   "denied",
		Details:  fmt.Sprintf("superseded by new message (%d chars)", len(newText)),
	})
}

// executeTool runs one tool through the registry and records the outcome.
func (a *Assistant) executeTool(ctx context.Context, name string, args map[string]any, mode string) domain.Result {
	toolExecs.Inc()
	result := a.tools.Execute(ctx, name, args)

	status := "ok"
	details := mode
	if !result.OK() {
		status = "error"
		details = fmt.Sprintf("%s: %s", mode, result.Err.Kind)
	}
	a.audit(ctx, domain.AuditEntry{
		Action:   "tool_exec",
		ToolName: name,
		Args:     marshalArgs(args),
		Result:   status,
		Details:  details,
	})
	return result
}

func (a *Assistant) audit(ctx context.Context, entry domain.AuditEntry) {
	if a.auditor != nil {
		a.auditor.Record(ctx, entry)
	}
}

func (a *Assistant) generate(ctx context.Context, prompt string) (string, error) {
	modelCalls.Inc()
	start := time.Now()
	reply, err := a.provider.Generate(ctx, prompt)
	modelLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}
	return reply, nil
}

func (a *Assistant) generateStream(ctx context.Context, prompt string) (<-chan string, error) {
	modelCalls.Inc()
	if sp, ok := a.provider.(domain.StreamingGenerator); ok {
		ch, err := sp.GenerateStream(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("model stream: %w", err)
		}
		return ch, nil
	}

	// Provider has no streaming support: fall back to one complete call
	// delivered as a single chunk.
	reply, err := a.provider.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	ch := make(chan string, 1)
	ch <- reply
	close(ch)
	return ch, nil
}

func marshalArgs(args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func marshalCall(name string, args map[string]any) string {
	data, err := json.Marshal(map[string]any{"name": name, "args": args})
	if err != nil {
		return fmt.Sprintf(`{"name":%q}`, name)
	}
	return string(data)
}
