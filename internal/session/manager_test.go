package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"alfred/internal/assistant"
	"alfred/internal/tool"
)

type nullGenerator struct{}

func (nullGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "ok", nil
}
func (nullGenerator) Name() string { return "null" }

func newTestManager(t *testing.T) (*Manager, *int) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	registry := tool.NewRegistry(logger)

	var created int
	m := NewManager(func() *assistant.Assistant {
		created++
		return assistant.New(assistant.Config{
			Provider: nullGenerator{},
			Tools:    registry,
			Logger:   logger,
		})
	}, logger)
	return m, &created
}

func TestKey(t *testing.T) {
	if got := Key("telegram", "12345"); got != "telegram:12345" {
		t.Fatalf("unexpected key: %q", got)
	}
}

func TestGet_ReusesSession(t *testing.T) {
	m, created := newTestManager(t)

	a := m.Get("web:one")
	b := m.Get("web:one")
	if a != b {
		t.Fatal("same key must return the same assistant")
	}
	if *created != 1 {
		t.Fatalf("factory called %d times", *created)
	}
}

func TestGet_DistinctKeysDistinctSessions(t *testing.T) {
	m, created := newTestManager(t)

	if m.Get("web:one") == m.Get("web:two") {
		t.Fatal("distinct keys must not share an assistant")
	}
	if *created != 2 {
		t.Fatalf("factory called %d times", *created)
	}
	if m.Count() != 2 {
		t.Fatalf("count: %d", m.Count())
	}
}

func TestClear_DropsSession(t *testing.T) {
	m, _ := newTestManager(t)

	a := m.Get("cli:direct")
	m.Clear("cli:direct")
	if m.Count() != 0 {
		t.Fatalf("count after clear: %d", m.Count())
	}
	if m.Get("cli:direct") == a {
		t.Fatal("cleared key must yield a fresh assistant")
	}
}

func TestGet_ConcurrentSameKey(t *testing.T) {
	m, created := newTestManager(t)

	var wg sync.WaitGroup
	results := make([]*assistant.Assistant, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Get("web:race")
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r != results[0] {
			t.Fatal("concurrent Get returned different assistants")
		}
	}
	if *created != 1 {
		t.Fatalf("factory called %d times under race", *created)
	}
}
