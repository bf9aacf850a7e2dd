// Package security holds the permission gates tool handlers consult before
// performing privileged actions, and the audit trail of orchestrator events.
package security

import (
	"errors"
	"fmt"
	"os"
)

// ErrDisabled is wrapped by handlers when a permission gate rejects an
// action. The executor classifies it as a structured "disabled" result
// instead of a fault.
var ErrDisabled = errors.New("disabled")

// Gates carries the externally supplied enablement flags for privileged
// tool categories. Flags come from config, with environment overrides.
type Gates struct {
	Automation bool // mouse/keyboard/screen control
	SelfModify bool // overwriting the assistant's own source files
}

const (
	automationEnv = "ALFRED_ALLOW_AUTOMATION"
	selfModifyEnv = "ALFRED_ALLOW_SELF_MODIFY"
)

// FromEnv applies environment overrides on top of configured flags.
// Setting the variable to "1" enables the gate; any other value leaves the
// configured flag intact.
func (g Gates) FromEnv() Gates {
	if os.Getenv(automationEnv) == "1" {
		g.Automation = true
	}
	if os.Getenv(selfModifyEnv) == "1" {
		g.SelfModify = true
	}
	return g
}

// CheckAutomation returns a disabled error when input-device automation is
// not enabled.
func (g Gates) CheckAutomation() error {
	if !g.Automation {
		return fmt.Errorf("%w: automation is off, set %s=1 to enable", ErrDisabled, automationEnv)
	}
	return nil
}

// CheckSelfModify returns a disabled error when code self-modification is
// not enabled.
func (g Gates) CheckSelfModify() error {
	if !g.SelfModify {
		return fmt.Errorf("%w: self-modification is off, set %s=1 to enable", ErrDisabled, selfModifyEnv)
	}
	return nil
}
