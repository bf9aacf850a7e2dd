package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace: "~/.alfred/workspace",
			LogLevel:  "info",
		},
		Provider: ProviderConfig{
			Model:           "text-bison-001",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta2",
			Temperature:     0.2,
			MaxOutputTokens: 256,
			StreamChunkSize: 60,
			TimeoutSeconds:  30,
		},
		Channels: ChannelsConfig{
			CLI: CLIConfig{
				Enabled: true,
				Stream:  true,
			},
			Web: WebConfig{
				Enabled: false,
				Host:    "127.0.0.1",
				Port:    8080,
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
		Security: SecurityConfig{
			AllowAutomation: false,
			AllowSelfModify: false,
			AuditLog:        true,
			AuditDBPath:     "~/.alfred/audit.db",
		},
		Browser: BrowserConfig{
			ProfileDir: "~/.alfred/browser-profile",
			Headless:   true,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
