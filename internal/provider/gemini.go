// Package provider implements the language-model backends.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"alfred/internal/domain"
)

const (
	defaultModel     = "text-bison-001"
	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta2"
	defaultChunkSize = 60
)

// Gemini implements domain.Generator against the Google generative language
// API. Without an API key it degrades to a local echo backend so the CLI
// stays usable offline.
type Gemini struct {
	apiKey          string
	model           string
	baseURL         string
	temperature     float64
	maxOutputTokens int
	chunkSize       int
	limiter         *RateLimiter
	client          *http.Client
	logger          *slog.Logger
}

type GeminiConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float64
	MaxOutputTokens int
	StreamChunkSize int
	RateLimitPerMin int
	Timeout         time.Duration
	Logger          *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 256
	}
	if cfg.StreamChunkSize <= 0 {
		cfg.StreamChunkSize = defaultChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var limiter *RateLimiter
	if cfg.RateLimitPerMin > 0 {
		limiter = NewRateLimiter(cfg.RateLimitPerMin, float64(cfg.RateLimitPerMin))
	}
	return &Gemini{
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		chunkSize:       cfg.StreamChunkSize,
		limiter:         limiter,
		client:          SharedHTTPClient(cfg.Timeout),
		logger:          cfg.Logger,
	}
}

var (
	_ domain.Generator          = (*Gemini)(nil)
	_ domain.StreamingGenerator = (*Gemini)(nil)
)

func (g *Gemini) Name() string { return "gemini" }

type geminiRequest struct {
	Prompt          geminiPrompt `json:"prompt"`
	Temperature     float64      `json:"temperature"`
	MaxOutputTokens int          `json:"maxOutputTokens"`
}

type geminiPrompt struct {
	Text string `json:"text"`
}

// Generate performs one synchronous completion. With no API key configured
// it returns the echo fallback instead of calling out.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.apiKey == "" {
		return "[local-fallback] Echo: " + prompt, nil
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(geminiRequest{
		Prompt:          geminiPrompt{Text: prompt},
		Temperature:     g.temperature,
		MaxOutputTokens: g.maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generate?key=%s", g.baseURL, g.model, url.QueryEscape(g.apiKey))
	resp, err := doWithRetry(ctx, g.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, g.logger)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	text, err := parseCompletion(raw)
	if err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return text, nil
}

// GenerateStream yields the completion in fixed-size chunks. The upstream
// API has no incremental endpoint for this model family so chunking happens
// client-side after one complete call.
func (g *Gemini) GenerateStream(ctx context.Context, prompt string) (<-chan string, error) {
	full, err := g.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for i := 0; i < len(full); {
			end := i + g.chunkSize
			if end > len(full) {
				end = len(full)
			}
			// Cut on a rune boundary: a chunk carrying a partial rune would
			// corrupt the text once each chunk is encoded as its own frame.
			for end < len(full) && !utf8.RuneStart(full[end]) {
				end--
			}
			if end <= i {
				// Rune wider than the chunk size; emit it whole.
				_, size := utf8.DecodeRuneInString(full[i:])
				end = i + size
			}
			select {
			case out <- full[i:end]:
			case <-ctx.Done():
				return
			}
			i = end
		}
	}()
	return out, nil
}

// parseCompletion extracts the reply text from the known response shapes:
// candidates with "output" or "content" fields, or a top-level "output"
// list. Unknown shapes are returned verbatim rather than dropped.
func parseCompletion(raw []byte) (string, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", err
	}

	if candidates, ok := data["candidates"].([]any); ok && len(candidates) > 0 {
		if first, ok := candidates[0].(map[string]any); ok {
			if out, ok := first["output"].(string); ok {
				return out, nil
			}
			if content, ok := first["content"].(string); ok {
				return content, nil
			}
		}
	}

	if out, ok := data["output"].([]any); ok {
		var parts []string
		for _, item := range out {
			if m, ok := item.(map[string]any); ok {
				if content, ok := m["content"].(string); ok {
					parts = append(parts, content)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}

	return string(raw), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
