package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"alfred/internal/assistant"
	"alfred/internal/browser"
	"alfred/internal/channel"
	"alfred/internal/config"
	"alfred/internal/memory"
	"alfred/internal/persona"
	"alfred/internal/provider"
	"alfred/internal/security"
	"alfred/internal/session"
	"alfred/internal/tool"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "alfred",
		Short: "Alfred: a proactive AI butler for your workstation",
		Long:  "Alfred is an AI assistant that performs actions through confirmed tool calls, reachable from the terminal, a web API, and Telegram.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.alfred/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfigOrDefaults() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
		cfg.General.Workspace = config.ExpandPath(cfg.General.Workspace)
		cfg.Security.AuditDBPath = config.ExpandPath(cfg.Security.AuditDBPath)
		cfg.Browser.ProfileDir = config.ExpandPath(cfg.Browser.ProfileDir)
	}
	return cfg
}

func applyLogLevel(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			workspace := config.ExpandPath(cfg.General.Workspace)
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "workspace", workspace)
			return nil
		},
	}
}

// runtime bundles the assembled collaborators shared by chat and serve.
type runtime struct {
	cfg      *config.Config
	sessions *session.Manager
	registry *tool.Registry
	audit    *memory.AuditStore
}

func (rt *runtime) close() {
	if rt.audit != nil {
		rt.audit.Close()
	}
}

func buildRuntime(cfg *config.Config) (*runtime, error) {
	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	gates := security.Gates{
		Automation: cfg.Security.AllowAutomation,
		SelfModify: cfg.Security.AllowSelfModify,
	}.FromEnv()

	var auditStore *memory.AuditStore
	if cfg.Security.AuditLog {
		store, err := memory.NewAuditStore(cfg.Security.AuditDBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		auditStore = store
	}
	var auditor *security.Auditor
	if auditStore != nil {
		auditor = security.NewAuditor(auditStore, logger)
	} else {
		auditor = security.NewAuditor(nil, logger)
	}

	bridge := browser.NewBridge(browser.BridgeConfig{
		ProfileDir: cfg.Browser.ProfileDir,
		Headless:   cfg.Browser.Headless,
		Logger:     logger,
	})

	registry := registerTools(cfg, gates, bridge)

	apiKey := cfg.Provider.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	prov := provider.NewGemini(provider.GeminiConfig{
		APIKey:          apiKey,
		Model:           cfg.Provider.Model,
		BaseURL:         cfg.Provider.BaseURL,
		Temperature:     cfg.Provider.Temperature,
		MaxOutputTokens: cfg.Provider.MaxOutputTokens,
		StreamChunkSize: cfg.Provider.StreamChunkSize,
		RateLimitPerMin: cfg.Provider.RateLimitPerMin,
		Timeout:         time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		Logger:          logger,
	})
	if apiKey == "" {
		logger.Warn("no API key configured, provider runs in local echo mode")
	}

	p := persona.Resolve(cfg.Persona.File, logger)
	logger.Info("persona active", "name", p.Name)

	sessions := session.NewManager(func() *assistant.Assistant {
		return assistant.New(assistant.Config{
			Provider:     prov,
			Tools:        registry,
			Auditor:      auditor,
			Logger:       logger,
			SystemPrompt: p.Prompt,
		})
	}, logger)

	return &runtime{
		cfg:      cfg,
		sessions: sessions,
		registry: registry,
		audit:    auditStore,
	}, nil
}

// registerTools wires the full tool set. Gated tools are registered even
// when their gate is off; the gate rejects at execution time with a
// structured disabled result.
func registerTools(cfg *config.Config, gates security.Gates, bridge *browser.Bridge) *tool.Registry {
	registry := tool.NewRegistry(logger)
	workspace := cfg.General.Workspace

	registry.Register(tool.NewReadFileTool(workspace))
	registry.Register(tool.NewWriteFileTool(workspace))
	registry.Register(tool.NewListFilesTool(workspace))
	registry.Register(tool.NewListWorkspaceTool(workspace))

	registry.Register(tool.NewMoveMouseTool(gates))
	registry.Register(tool.NewClickTool(gates))
	registry.Register(tool.NewTypeTextTool(gates))
	registry.Register(tool.NewScreenshotTool(gates))
	registry.Register(tool.NewPageCaptureTool(bridge))

	registry.Register(tool.NewModifyCodeTool(workspace, gates))
	registry.Register(tool.NewApplyUpgradeTool(workspace, gates))
	registry.Register(tool.NewUIStyleTool(workspace))

	return registry
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			applyLogLevel(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			cli := channel.NewCLI(channel.CLIConfig{
				Sessions: rt.sessions,
				Logger:   logger,
				Stream:   cfg.Channels.CLI.Stream,
			})
			return cli.Start(ctx)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web API and Telegram channels",
		Long:  "Starts all enabled network channels. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyLogLevel(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	errCh := make(chan error, 2)
	started := 0

	var webCh *channel.Web
	if cfg.Channels.Web.Enabled {
		webCh = channel.NewWeb(channel.WebConfig{
			Host:      cfg.Channels.Web.Host,
			Port:      cfg.Channels.Web.Port,
			Sessions:  rt.sessions,
			Registry:  rt.registry,
			Workspace: cfg.General.Workspace,
			Metrics:   cfg.Metrics.Enabled,
			Logger:    logger,
		})
		started++
		go func() { errCh <- webCh.Start(ctx) }()
	}

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Sessions:  rt.sessions,
			Logger:    logger,
		})
		started++
		go func() { errCh <- telegramCh.Start(ctx) }()
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	if started == 0 {
		return fmt.Errorf("no channels enabled; enable channels.web or channels.telegram in %s", cfgPath)
	}

	logger.Info("alfred serving. Press Ctrl+C to stop.")

	received := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		received++
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down...")
	stop()
	if webCh != nil {
		webCh.Stop()
	}

	// Give in-flight requests a moment to drain.
	drain, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := received; i < started; i++ {
		select {
		case <-errCh:
		case <-drain.Done():
			logger.Warn("shutdown timed out, forcing exit")
			return fmt.Errorf("shutdown timed out")
		}
	}
	logger.Info("shutdown complete")
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show effective configuration and tool availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()

			gates := security.Gates{
				Automation: cfg.Security.AllowAutomation,
				SelfModify: cfg.Security.AllowSelfModify,
			}.FromEnv()

			logger.Info("config", "path", resolveConfigPath())
			logger.Info("workspace", "path", cfg.General.Workspace)
			logger.Info("provider", "model", cfg.Provider.Model, "api_key_set", cfg.Provider.APIKey != "")
			logger.Info("gates", "automation", gates.Automation, "self_modify", gates.SelfModify)
			logger.Info("channels",
				"cli", cfg.Channels.CLI.Enabled,
				"web", cfg.Channels.Web.Enabled,
				"telegram", cfg.Channels.Telegram.Enabled,
			)
			logger.Info("audit", "enabled", cfg.Security.AuditLog, "db", cfg.Security.AuditDBPath)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. provider.model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. provider.model gemini-pro)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("alfred", version)
		},
	}
}
