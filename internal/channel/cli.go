// Package channel hosts the user-facing transports: terminal REPL, HTTP
// web API with WebSocket streaming, and Telegram long polling. Each
// transport resolves a session and hands the raw text to that session's
// assistant; confirmation commands flow through the same path as ordinary
// text.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"alfred/internal/domain"
	"alfred/internal/session"
)

// sessionAssistant is the slice of the assistant API the transports use.
type sessionAssistant interface {
	ProcessText(ctx context.Context, text string) (string, error)
	ProcessStream(ctx context.Context, text string) (domain.Reply, error)
	Reset()
}

// CLI is the interactive terminal transport.
type CLI struct {
	sessions *session.Manager
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer
	stream   bool
}

type CLIConfig struct {
	Sessions *session.Manager
	Logger   *slog.Logger
	In       io.Reader
	Out      io.Writer
	Stream   bool
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &CLI{
		sessions: cfg.Sessions,
		logger:   cfg.Logger,
		in:       cfg.In,
		out:      cfg.Out,
		stream:   cfg.Stream,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the REPL and blocks until EOF, /quit, or context cancellation.
func (c *CLI) Start(ctx context.Context) error {
	a := c.sessions.Get(session.Key("cli", "direct"))

	fmt.Fprintln(c.out, "Alfred at your service. Type a message and press Enter.")
	fmt.Fprintln(c.out, "Commands: /confirm, /cancel, /tool <name> <json-args>, /reset, /quit")
	fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(c.out, "You> ")
			continue
		}
		switch line {
		case "/quit", "/exit", "/q":
			c.logger.Info("user requested quit")
			return nil
		case "/reset":
			a.Reset()
			fmt.Fprintln(c.out, "Conversation reset.")
			fmt.Fprint(c.out, "You> ")
			continue
		}

		if err := c.respond(ctx, a, line); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		fmt.Fprint(c.out, "You> ")
	}
}

func (c *CLI) respond(ctx context.Context, a sessionAssistant, line string) error {
	fmt.Fprintln(c.out, "--- Alfred ---")
	defer fmt.Fprintln(c.out, "\n--------------")

	if !c.stream {
		reply, err := a.ProcessText(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprint(c.out, reply)
		return nil
	}

	reply, err := a.ProcessStream(ctx, line)
	if err != nil {
		return err
	}
	if !reply.IsStream() {
		fmt.Fprint(c.out, reply.Text)
		return nil
	}
	for chunk := range reply.Stream {
		fmt.Fprint(c.out, chunk)
	}
	return nil
}
