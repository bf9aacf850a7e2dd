// Package config loads and validates the Alfred JSON configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for Alfred.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Provider ProviderConfig `json:"provider"`
	Persona  PersonaConfig  `json:"persona"`
	Channels ChannelsConfig `json:"channels"`
	Security SecurityConfig `json:"security"`
	Browser  BrowserConfig  `json:"browser"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	Workspace string `json:"workspace"`
	LogLevel  string `json:"logLevel"`
	LogFile   string `json:"logFile,omitempty"`
}

// ProviderConfig configures the language-model backend. With an empty API
// key the provider runs in local echo mode, which keeps the CLI usable
// offline.
type ProviderConfig struct {
	APIKey          string  `json:"apiKey,omitempty"`
	Model           string  `json:"model"`
	BaseURL         string  `json:"baseUrl"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	StreamChunkSize int     `json:"streamChunkSize"`
	RateLimitPerMin int     `json:"rateLimitPerMinute,omitempty"`
	TimeoutSeconds  int     `json:"timeoutSeconds"`
}

// PersonaConfig selects the assistant identity. File points at a YAML
// persona definition; when empty the built-in butler persona is used. The
// ALFRED_SYSTEM_PROMPT environment variable overrides both.
type PersonaConfig struct {
	File string `json:"file,omitempty"`
	Name string `json:"name,omitempty"`
}

type ChannelsConfig struct {
	CLI      CLIConfig      `json:"cli"`
	Web      WebConfig      `json:"web"`
	Telegram TelegramConfig `json:"telegram"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
	Stream  bool `json:"stream"`
}

type WebConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
}

// SecurityConfig configures tool gating and the audit trail. The
// ALFRED_ALLOW_AUTOMATION and ALFRED_ALLOW_SELF_MODIFY environment
// variables override the gate flags at process start.
type SecurityConfig struct {
	AllowAutomation bool   `json:"allowAutomation"`
	AllowSelfModify bool   `json:"allowSelfModify"`
	AuditLog        bool   `json:"auditLog"`
	AuditDBPath     string `json:"auditDbPath"`
}

type BrowserConfig struct {
	ProfileDir string `json:"profileDir"`
	Headless   bool   `json:"headless"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays
// containing both strings and numbers (chat ids arrive as either).
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, n.String())
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.alfred).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".alfred"
	}
	return filepath.Join(home, ".alfred")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Security.AuditDBPath = ExpandPath(cfg.Security.AuditDBPath)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)
	cfg.Persona.File = ExpandPath(cfg.Persona.File)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.Workspace == "" {
		errs = append(errs, "general.workspace must not be empty")
	}

	if cfg.Provider.Model == "" {
		errs = append(errs, "provider.model must not be empty")
	}
	if cfg.Provider.BaseURL == "" {
		errs = append(errs, "provider.baseUrl must not be empty")
	}
	if cfg.Provider.MaxOutputTokens < 1 {
		errs = append(errs, "provider.maxOutputTokens must be >= 1")
	}
	if cfg.Provider.StreamChunkSize < 1 {
		errs = append(errs, "provider.streamChunkSize must be >= 1")
	}
	if cfg.Provider.TimeoutSeconds < 1 {
		errs = append(errs, "provider.timeoutSeconds must be >= 1")
	}

	if cfg.Channels.Web.Port < 0 || cfg.Channels.Web.Port > 65535 {
		errs = append(errs, "channels.web.port must be between 0 and 65535")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if cfg.Security.AuditLog && cfg.Security.AuditDBPath == "" {
		errs = append(errs, "security.auditDbPath is required when auditLog is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
