package persona

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDefault_IsButler(t *testing.T) {
	p := Default()
	if p.Name != "Alfred" {
		t.Fatalf("unexpected name: %q", p.Name)
	}
	if !strings.Contains(p.Prompt, "AI Butler") {
		t.Fatalf("default prompt missing identity: %q", p.Prompt)
	}
}

func TestLoadFile_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	content := "name: Jeeves\ntone: formal\nprompt: You are Jeeves, a valet.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name != "Jeeves" || !strings.Contains(p.Prompt, "valet") {
		t.Fatalf("unexpected persona: %+v", p)
	}
}

func TestLoadFile_EmptyPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	if err := os.WriteFile(path, []byte("name: Nobody\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestResolve_EnvOverride(t *testing.T) {
	t.Setenv("ALFRED_SYSTEM_PROMPT", "You are a test harness.")
	p := Resolve("", testLogger())
	if p.Prompt != "You are a test harness." {
		t.Fatalf("env override not applied: %q", p.Prompt)
	}
}

func TestResolve_BadFileFallsBack(t *testing.T) {
	p := Resolve(filepath.Join(t.TempDir(), "missing.yaml"), testLogger())
	if p.Name != "Alfred" {
		t.Fatalf("expected default persona fallback, got %+v", p)
	}
}
