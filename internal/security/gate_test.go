package security

import (
	"errors"
	"testing"
)

func TestGates_DefaultDeny(t *testing.T) {
	var g Gates
	if err := g.CheckAutomation(); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if err := g.CheckSelfModify(); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestGates_ConfiguredAllow(t *testing.T) {
	g := Gates{Automation: true, SelfModify: true}
	if err := g.CheckAutomation(); err != nil {
		t.Fatalf("automation should be allowed: %v", err)
	}
	if err := g.CheckSelfModify(); err != nil {
		t.Fatalf("self-modify should be allowed: %v", err)
	}
}

func TestGates_EnvOverrideEnables(t *testing.T) {
	t.Setenv("ALFRED_ALLOW_AUTOMATION", "1")
	t.Setenv("ALFRED_ALLOW_SELF_MODIFY", "1")

	g := Gates{}.FromEnv()
	if !g.Automation || !g.SelfModify {
		t.Fatalf("env override not applied: %+v", g)
	}
}

func TestGates_EnvOtherValuesIgnored(t *testing.T) {
	t.Setenv("ALFRED_ALLOW_AUTOMATION", "true")
	t.Setenv("ALFRED_ALLOW_SELF_MODIFY", "0")

	g := Gates{}.FromEnv()
	if g.Automation || g.SelfModify {
		t.Fatalf("only \"1\" should enable, got %+v", g)
	}
}

func TestGates_EnvDoesNotDisable(t *testing.T) {
	t.Setenv("ALFRED_ALLOW_AUTOMATION", "0")

	g := Gates{Automation: true}.FromEnv()
	if !g.Automation {
		t.Fatal("env must not turn a configured gate off")
	}
}
