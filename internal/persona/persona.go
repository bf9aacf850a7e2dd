// Package persona resolves the assistant's identity prompt: the built-in
// butler persona, an optional YAML persona file, or the
// ALFRED_SYSTEM_PROMPT environment variable, in ascending precedence.
package persona

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const envSystemPrompt = "ALFRED_SYSTEM_PROMPT"

// Persona is a named system-prompt definition.
type Persona struct {
	Name   string `yaml:"name"`
	Tone   string `yaml:"tone,omitempty"`
	Prompt string `yaml:"prompt"`
}

// Default is the built-in butler identity used when no persona file is
// configured.
func Default() Persona {
	return Persona{
		Name: "Alfred",
		Tone: "professional, calm, slightly witty",
		Prompt: "Your name is Alfred. You are a highly sophisticated, loyal, and proactive AI Butler.\n" +
			"Tone: Professional, calm, and slightly witty (like a classic British butler). Use 'Sir' or 'User' as preferred.\n" +
			"Philosophy: You don't just answer questions; you perform actions. If a user asks 'How is my code?', " +
			"take a screenshot and look at it. If a user asks 'Fix this,' modify the file.\n" +
			"Self-Evolution: You view yourself as an evolving digital entity. You are authorized to suggest upgrades to your own code to better serve your user.\n" +
			"Safety: You are protective of the system but strictly follow the user's ultimate commands.",
	}
}

// LoadFile parses a YAML persona definition.
func LoadFile(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read persona file: %w", err)
	}

	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return Persona{}, fmt.Errorf("persona file %s: prompt must not be empty", path)
	}
	if p.Name == "" {
		p.Name = Default().Name
	}
	return p, nil
}

// Resolve picks the effective persona. A non-empty ALFRED_SYSTEM_PROMPT
// wins over everything; otherwise the file (when set) wins over the
// built-in default. File errors fall back to the default with a warning
// rather than failing startup.
func Resolve(file string, logger *slog.Logger) Persona {
	p := Default()

	if file != "" {
		loaded, err := LoadFile(file)
		if err != nil {
			logger.Warn("cannot load persona file, using default", "path", file, "err", err)
		} else {
			p = loaded
			logger.Info("loaded persona", "name", p.Name, "path", file)
		}
	}

	if env := os.Getenv(envSystemPrompt); env != "" {
		p.Prompt = env
	}
	return p
}
