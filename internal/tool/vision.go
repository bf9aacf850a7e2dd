package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"alfred/internal/browser"
	"alfred/internal/domain"
)

// PageCaptureTool renders a web page in headless Chrome and returns a
// base64 PNG screenshot for vision analysis.
type PageCaptureTool struct {
	bridge *browser.Bridge
}

func NewPageCaptureTool(bridge *browser.Bridge) *PageCaptureTool {
	return &PageCaptureTool{bridge: bridge}
}

func (t *PageCaptureTool) Name() string { return "page_capture" }
func (t *PageCaptureTool) Description() string {
	return "Render a web page in a headless browser and return a base64 PNG screenshot."
}
func (t *PageCaptureTool) Sensitive() bool { return false }
func (t *PageCaptureTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"url": {Type: "string", Description: "Page URL (http or https)"},
		},
		[]string{"url"},
	)
}

func (t *PageCaptureTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	url := ArgsString(args, "url")
	if url == "" {
		return nil, fmt.Errorf("%w: missing argument: url", ErrInvalidArgs)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: url must start with http:// or https://", ErrInvalidArgs)
	}
	png, err := t.bridge.CapturePage(ctx, url)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"image_base64": base64.StdEncoding.EncodeToString(png),
		"size":         len(png),
		"url":          url,
	}, nil
}

var _ domain.Tool = (*PageCaptureTool)(nil)
