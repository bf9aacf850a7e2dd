package assistant

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"alfred/internal/domain"
	"alfred/internal/security"
	"alfred/internal/tool"
)

// fakeGenerator returns scripted replies in order and records the prompts
// it received.
type fakeGenerator struct {
	mu      sync.Mutex
	replies []string
	prompts []string
	err     error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.prompts = append(f.prompts, prompt)
	if len(f.replies) == 0 {
		return "I have nothing further to add.", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeGenerator) prompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[i]
}

// stubTool counts executions and echoes its arguments.
type stubTool struct {
	name      string
	sensitive bool
	mu        sync.Mutex
	execs     int
	lastArgs  map[string]any
	err       error
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return "stub tool" }
func (s *stubTool) Sensitive() bool            { return s.sensitive }
func (s *stubTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs++
	s.lastArgs = args
	if s.err != nil {
		return nil, s.err
	}
	return map[string]any{"echo": args}, nil
}

func (s *stubTool) executions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execs
}

// recordingAuditStore captures persisted audit entries.
type recordingAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *recordingAuditStore) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAuditStore) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Action
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	assistant *Assistant
	gen       *fakeGenerator
	plain     *stubTool
	risky     *stubTool
	audit     *recordingAuditStore
}

func newFixture(t *testing.T, replies ...string) *fixture {
	t.Helper()
	logger := testLogger()

	registry := tool.NewRegistry(logger)
	plain := &stubTool{name: "echo_tool"}
	risky := &stubTool{name: "danger_tool", sensitive: true}
	registry.Register(plain)
	registry.Register(risky)

	audit := &recordingAuditStore{}
	gen := &fakeGenerator{replies: replies}

	a := New(Config{
		Provider:     gen,
		Tools:        registry,
		Auditor:      security.NewAuditor(audit, logger),
		Logger:       logger,
		SystemPrompt: "You are a test butler.",
	})
	return &fixture{assistant: a, gen: gen, plain: plain, risky: risky, audit: audit}
}

func roles(turns []domain.Turn) []domain.Role {
	out := make([]domain.Role, len(turns))
	for i, turn := range turns {
		out[i] = turn.Role
	}
	return out
}

func TestProcessText_PlainReply(t *testing.T) {
	f := newFixture(t, "Good evening, Sir.")

	reply, err := f.assistant.ProcessText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != "Good evening, Sir." {
		t.Fatalf("unexpected reply: %q", reply)
	}

	history := f.assistant.History()
	if len(history) != 2 || history[0].Role != domain.RoleUser || history[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected history: %+v", history)
	}
	if f.gen.calls() != 1 {
		t.Fatalf("expected one model call, got %d", f.gen.calls())
	}
	if f.plain.executions() != 0 || f.risky.executions() != 0 {
		t.Fatal("no tool should execute on a plain reply")
	}
}

func TestProcessText_PromptCarriesCatalogueAndInstruction(t *testing.T) {
	f := newFixture(t, "ok")

	if _, err := f.assistant.ProcessText(context.Background(), "hello"); err != nil {
		t.Fatalf("process: %v", err)
	}

	prompt := f.gen.prompt(0)
	for _, want := range []string{
		"System: You are a test butler.",
		"User: hello",
		"Available tools (name -> schema):",
		"echo_tool",
		"danger_tool",
		`{"tool_call": {"name": "<tool_name>", "args": { ... }}}`,
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestProcessText_NonSensitiveToolExecutesImmediately(t *testing.T) {
	f := newFixture(t,
		`{"tool_call": {"name": "echo_tool", "args": {"path": "x.txt"}}}`,
		"The file says hello.",
	)

	reply, err := f.assistant.ProcessText(context.Background(), "read x")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != "The file says hello." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.plain.executions() != 1 {
		t.Fatalf("expected one execution, got %d", f.plain.executions())
	}
	if f.gen.calls() != 2 {
		t.Fatalf("expected two model calls, got %d", f.gen.calls())
	}

	history := f.assistant.History()
	want := []domain.Role{domain.RoleUser, domain.RoleAssistant, domain.RoleTool, domain.RoleAssistant}
	got := roles(history)
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("unexpected turn roles: %v", got)
		}
	}
	if !strings.HasPrefix(history[1].Content, "[tool_call] ") {
		t.Fatalf("intent turn not recorded: %q", history[1].Content)
	}

	// Follow-up prompt reuses the triggering text and carries the result.
	followup := f.gen.prompt(1)
	if !strings.Contains(followup, "Tool result:") {
		t.Fatalf("follow-up prompt missing tool result:\n%s", followup)
	}
	if !strings.Contains(followup, "User: read x") {
		t.Fatalf("follow-up prompt missing original text:\n%s", followup)
	}
	if strings.Contains(followup, "Available tools") {
		t.Fatal("follow-up prompt must not carry the tool catalogue")
	}
}

func TestProcessText_SensitiveToolHeldForConfirmation(t *testing.T) {
	f := newFixture(t, `{"tool_call": {"name": "danger_tool", "args": {"target": "sys"}}}`)

	reply, err := f.assistant.ProcessText(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(reply, "danger_tool") || !strings.Contains(reply, "/confirm") {
		t.Fatalf("confirmation reply malformed: %q", reply)
	}
	if f.risky.executions() != 0 {
		t.Fatal("sensitive tool must not execute before confirmation")
	}

	pending := f.assistant.Pending()
	if pending == nil || pending.Name != "danger_tool" || pending.OriginUserText != "do the thing" {
		t.Fatalf("pending call not recorded: %+v", pending)
	}
}

func TestProcessText_ConfirmExecutesPending(t *testing.T) {
	f := newFixture(t,
		`{"tool_call": {"name": "danger_tool", "args": {"target": "sys"}}}`,
		"Done, Sir.",
	)

	if _, err := f.assistant.ProcessText(context.Background(), "do the thing"); err != nil {
		t.Fatal(err)
	}
	reply, err := f.assistant.ProcessText(context.Background(), "/confirm")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if reply != "Done, Sir." {
		t.Fatalf("unexpected final reply: %q", reply)
	}
	if f.risky.executions() != 1 {
		t.Fatalf("expected one execution, got %d", f.risky.executions())
	}
	if f.risky.lastArgs["target"] != "sys" {
		t.Fatalf("stored args not used: %+v", f.risky.lastArgs)
	}
	if f.assistant.Pending() != nil {
		t.Fatal("pending call not cleared after confirm")
	}

	// Follow-up prompt uses the original triggering text.
	followup := f.gen.prompt(1)
	if !strings.Contains(followup, "User: do the thing") {
		t.Fatalf("follow-up missing original text:\n%s", followup)
	}

	history := f.assistant.History()
	if history[len(history)-2].Role != domain.RoleTool {
		t.Fatalf("tool turn missing: %v", roles(history))
	}
}

func TestProcessText_ConfirmIsCaseInsensitive(t *testing.T) {
	f := newFixture(t,
		`{"tool_call": {"name": "danger_tool", "args": {}}}`,
		"As confirmed.",
	)
	if _, err := f.assistant.ProcessText(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.assistant.ProcessText(context.Background(), "  /CONFIRM  "); err != nil {
		t.Fatal(err)
	}
	if f.risky.executions() != 1 {
		t.Fatalf("expected execution on case-insensitive confirm, got %d", f.risky.executions())
	}
}

func TestProcessText_ConfirmWithoutPending(t *testing.T) {
	f := newFixture(t)

	reply, err := f.assistant.ProcessText(context.Background(), "/confirm")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if reply != "No pending action to confirm." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if len(f.assistant.History()) != 0 {
		t.Fatal("no-op confirm must not touch history")
	}
	if f.gen.calls() != 0 {
		t.Fatal("no-op confirm must not call the model")
	}
}

func TestProcessText_CancelClearsPending(t *testing.T) {
	f := newFixture(t, `{"tool_call": {"name": "danger_tool", "args": {}}}`)

	if _, err := f.assistant.ProcessText(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	reply, err := f.assistant.ProcessText(context.Background(), "/cancel")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Pending tool call canceled." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.risky.executions() != 0 {
		t.Fatal("canceled tool must never execute")
	}
	if f.assistant.Pending() != nil {
		t.Fatal("pending not cleared")
	}

	// Second cancel is an informational no-op.
	reply, err = f.assistant.ProcessText(context.Background(), "/cancel")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "No pending action to cancel." {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestProcessText_NewMessageAutoCancelsPending(t *testing.T) {
	f := newFixture(t,
		`{"tool_call": {"name": "danger_tool", "args": {}}}`,
		"Plain answer.",
	)

	if _, err := f.assistant.ProcessText(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	reply, err := f.assistant.ProcessText(context.Background(), "actually, never mind")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Plain answer." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.assistant.Pending() != nil {
		t.Fatal("stale pending call must be auto-canceled")
	}
	if f.risky.executions() != 0 {
		t.Fatal("auto-canceled tool must never execute")
	}

	var sawAutoCancel bool
	for _, action := range f.audit.actions() {
		if action == "auto_cancel" {
			sawAutoCancel = true
		}
	}
	if !sawAutoCancel {
		t.Fatalf("auto-cancel not audited: %v", f.audit.actions())
	}
}

func TestProcessText_DirectToolBypassesSensitivity(t *testing.T) {
	f := newFixture(t)

	reply, err := f.assistant.ProcessText(context.Background(), `/tool danger_tool {"target": "sys"}`)
	if err != nil {
		t.Fatal(err)
	}
	if f.risky.executions() != 1 {
		t.Fatalf("direct invocation must execute, got %d", f.risky.executions())
	}
	if !strings.Contains(reply, `"status":"ok"`) {
		t.Fatalf("expected serialized result, got %q", reply)
	}
	if f.gen.calls() != 0 {
		t.Fatal("direct invocation must not call the model")
	}
	if f.assistant.Pending() != nil {
		t.Fatal("direct invocation must not touch pending state")
	}

	history := f.assistant.History()
	if len(history) != 2 {
		t.Fatalf("expected synthetic user + assistant turns, got %v", roles(history))
	}
	if !strings.HasPrefix(history[0].Content, "[tool-call] danger_tool ") {
		t.Fatalf("synthetic user turn malformed: %q", history[0].Content)
	}
}

func TestProcessText_DirectToolMalformedJSONDegradesToEmptyArgs(t *testing.T) {
	f := newFixture(t)

	if _, err := f.assistant.ProcessText(context.Background(), "/tool echo_tool {not json"); err != nil {
		t.Fatal(err)
	}
	if f.plain.executions() != 1 {
		t.Fatalf("expected execution, got %d", f.plain.executions())
	}
	if len(f.plain.lastArgs) != 0 {
		t.Fatalf("malformed JSON must degrade to empty args, got %+v", f.plain.lastArgs)
	}
}

func TestProcessText_UnknownToolDeferredToExecutor(t *testing.T) {
	f := newFixture(t,
		`{"tool_call": {"name": "no_such_tool", "args": {}}}`,
		"I could not find that capability.",
	)

	reply, err := f.assistant.ProcessText(context.Background(), "use the mystery tool")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != "I could not find that capability." {
		t.Fatalf("unexpected reply: %q", reply)
	}

	history := f.assistant.History()
	var toolTurn string
	for _, turn := range history {
		if turn.Role == domain.RoleTool {
			toolTurn = turn.Content
		}
	}
	if !strings.Contains(toolTurn, "unknown_tool") {
		t.Fatalf("unknown tool not surfaced as structured result: %q", toolTurn)
	}
}

func TestProcessText_ToolFaultBecomesExceptionResult(t *testing.T) {
	f := newFixture(t,
		`{"tool_call": {"name": "echo_tool", "args": {}}}`,
		"Something went wrong, Sir.",
	)
	f.plain.err = errors.New("disk on fire")

	if _, err := f.assistant.ProcessText(context.Background(), "try it"); err != nil {
		t.Fatalf("tool fault must not abort the flow: %v", err)
	}

	var toolTurn string
	for _, turn := range f.assistant.History() {
		if turn.Role == domain.RoleTool {
			toolTurn = turn.Content
		}
	}
	if !strings.Contains(toolTurn, "exception") || !strings.Contains(toolTurn, "disk on fire") {
		t.Fatalf("fault not classified: %q", toolTurn)
	}
}

func TestProcessText_FencedDirectiveAccepted(t *testing.T) {
	f := newFixture(t,
		"```json\n{\"tool_call\": {\"name\": \"echo_tool\", \"args\": {}}}\n```",
		"Unwrapped and executed.",
	)

	if _, err := f.assistant.ProcessText(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	if f.plain.executions() != 1 {
		t.Fatalf("fenced directive not executed, got %d executions", f.plain.executions())
	}
}

func TestProcessText_MalformedDirectiveTreatedAsText(t *testing.T) {
	f := newFixture(t, `{"tool_call": {"name": ""}}`)

	reply, err := f.assistant.ProcessText(context.Background(), "go")
	if err != nil {
		t.Fatal(err)
	}
	if reply != `{"tool_call": {"name": ""}}` {
		t.Fatalf("raw text must survive decode failure: %q", reply)
	}
	if f.plain.executions()+f.risky.executions() != 0 {
		t.Fatal("nothing should execute on decode failure")
	}
}

func TestProcessText_ProviderErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.gen.err = errors.New("upstream 500")

	if _, err := f.assistant.ProcessText(context.Background(), "hello"); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestProcessStream_PatchesPlaceholderTurn(t *testing.T) {
	f := newFixture(t, "streamed reply text")

	reply, err := f.assistant.ProcessStream(context.Background(), "hello")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if !reply.IsStream() {
		t.Fatal("expected stream reply for normal text")
	}

	var full strings.Builder
	for chunk := range reply.Stream {
		full.WriteString(chunk)
	}
	if full.String() != "streamed reply text" {
		t.Fatalf("stream content mismatch: %q", full.String())
	}

	history := f.assistant.History()
	last := history[len(history)-1]
	if last.Role != domain.RoleAssistant || last.Content != "streamed reply text" {
		t.Fatalf("placeholder turn not patched: %+v", last)
	}
}

// chunkedGenerator streams a fixed chunk sequence.
type chunkedGenerator struct {
	chunks []string
}

func (c *chunkedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return strings.Join(c.chunks, ""), nil
}

func (c *chunkedGenerator) Name() string { return "chunked" }

func (c *chunkedGenerator) GenerateStream(ctx context.Context, prompt string) (<-chan string, error) {
	ch := make(chan string, len(c.chunks))
	for _, chunk := range c.chunks {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

func TestProcessStream_AbandonedStreamPatchesPartialTurn(t *testing.T) {
	logger := testLogger()
	a := New(Config{
		Provider:     &chunkedGenerator{chunks: []string{"Good ", "evening, ", "Sir."}},
		Tools:        tool.NewRegistry(logger),
		Logger:       logger,
		SystemPrompt: "You are a test butler.",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reply, err := a.ProcessStream(ctx, "hello")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if !reply.IsStream() {
		t.Fatal("expected stream reply for normal text")
	}

	if first := <-reply.Stream; first != "Good " {
		t.Fatalf("unexpected first chunk: %q", first)
	}
	cancel()

	// The forwarding goroutine patches the placeholder once it observes the
	// cancellation; wait for that rather than draining the stream.
	deadline := time.Now().Add(2 * time.Second)
	for {
		history := a.History()
		last := history[len(history)-1]
		if last.Role == domain.RoleAssistant && last.Content != "" {
			if !strings.HasPrefix("Good evening, Sir.", last.Content) {
				t.Fatalf("patched turn is not a prefix of the reply: %q", last.Content)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("placeholder never patched after cancellation: %+v", last)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProcessStream_ControlCommandsReturnText(t *testing.T) {
	f := newFixture(t)

	reply, err := f.assistant.ProcessStream(context.Background(), "/cancel")
	if err != nil {
		t.Fatal(err)
	}
	if reply.IsStream() {
		t.Fatal("control commands must not stream")
	}
	if reply.Text != "No pending action to cancel." {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
}

func TestReset_ClearsConversationAndPending(t *testing.T) {
	f := newFixture(t, `{"tool_call": {"name": "danger_tool", "args": {}}}`)

	if _, err := f.assistant.ProcessText(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	f.assistant.Reset()
	if len(f.assistant.History()) != 0 {
		t.Fatal("history not cleared")
	}
	if f.assistant.Pending() != nil {
		t.Fatal("pending not cleared")
	}
}
