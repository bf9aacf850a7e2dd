package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"alfred/internal/domain"
	"alfred/internal/security"
)

// Input-device automation tools. All of them consult the automation gate:
// when the gate is off they return a structured disabled error instead of
// acting. Actual mouse/keyboard control is out of scope — the handlers
// acknowledge the request so the orchestration flow can be exercised
// end to end.

// --- MoveMouseTool ---

type MoveMouseTool struct {
	gates security.Gates
}

func NewMoveMouseTool(gates security.Gates) *MoveMouseTool {
	return &MoveMouseTool{gates: gates}
}

func (t *MoveMouseTool) Name() string { return "move_mouse" }
func (t *MoveMouseTool) Description() string {
	return "Move the mouse cursor to (x, y) with an optional duration in seconds."
}
func (t *MoveMouseTool) Sensitive() bool { return true }
func (t *MoveMouseTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"x":        {Type: "integer", Description: "Target X coordinate"},
			"y":        {Type: "integer", Description: "Target Y coordinate"},
			"duration": {Type: "number", Description: "Movement duration in seconds"},
		},
		[]string{"x", "y"},
	)
}

func (t *MoveMouseTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := t.gates.CheckAutomation(); err != nil {
		return nil, err
	}
	x, okX := ArgsInt(args, "x")
	y, okY := ArgsInt(args, "y")
	if !okX || !okY {
		return nil, fmt.Errorf("%w: x and y are required integers", ErrInvalidArgs)
	}
	return map[string]any{"status": "moved", "x": x, "y": y}, nil
}

// --- ClickTool ---

type ClickTool struct {
	gates security.Gates
}

func NewClickTool(gates security.Gates) *ClickTool {
	return &ClickTool{gates: gates}
}

func (t *ClickTool) Name() string { return "click" }
func (t *ClickTool) Description() string {
	return "Click at (x, y), or at the current position when coordinates are omitted."
}
func (t *ClickTool) Sensitive() bool { return true }
func (t *ClickTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"x":      {Type: "integer", Description: "X coordinate"},
			"y":      {Type: "integer", Description: "Y coordinate"},
			"button": {Type: "string", Description: "Mouse button: left, right, middle"},
		},
		nil,
	)
}

func (t *ClickTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := t.gates.CheckAutomation(); err != nil {
		return nil, err
	}
	button := ArgsString(args, "button")
	if button == "" {
		button = "left"
	}
	payload := map[string]any{"status": "clicked", "button": button}
	if x, ok := ArgsInt(args, "x"); ok {
		payload["x"] = x
	}
	if y, ok := ArgsInt(args, "y"); ok {
		payload["y"] = y
	}
	return payload, nil
}

// --- TypeTextTool ---

type TypeTextTool struct {
	gates security.Gates
}

func NewTypeTextTool(gates security.Gates) *TypeTextTool {
	return &TypeTextTool{gates: gates}
}

func (t *TypeTextTool) Name() string { return "type_text" }
func (t *TypeTextTool) Description() string {
	return "Type the given text into the active window."
}
func (t *TypeTextTool) Sensitive() bool { return true }
func (t *TypeTextTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"text":     {Type: "string", Description: "Text to type"},
			"interval": {Type: "number", Description: "Delay between keystrokes in seconds"},
		},
		[]string{"text"},
	)
}

func (t *TypeTextTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := t.gates.CheckAutomation(); err != nil {
		return nil, err
	}
	text, ok := args["text"].(string)
	if !ok || text == "" {
		return nil, fmt.Errorf("%w: missing argument: text", ErrInvalidArgs)
	}
	return map[string]any{"status": "typed", "length": len(text)}, nil
}

// --- ScreenshotTool ---

// ScreenshotTool captures the screen with the platform capture utility and
// returns the image as base64 PNG. Capture itself does not touch input
// devices, but it still requires the automation gate because it reads
// whatever is on screen.
type ScreenshotTool struct {
	gates security.Gates
}

func NewScreenshotTool(gates security.Gates) *ScreenshotTool {
	return &ScreenshotTool{gates: gates}
}

func (t *ScreenshotTool) Name() string { return "screenshot" }
func (t *ScreenshotTool) Description() string {
	return "Capture a screenshot and return it base64-encoded as PNG."
}
func (t *ScreenshotTool) Sensitive() bool { return false }
func (t *ScreenshotTool) Parameters() map[string]any {
	return ToolParameters(nil, nil)
}

func (t *ScreenshotTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := t.gates.CheckAutomation(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "alfred-shot-*.png")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "screencapture", "-x", tmpPath)
	case "linux":
		cmd = exec.CommandContext(ctx, "import", "-window", "root", tmpPath)
	default:
		return nil, fmt.Errorf("screenshot not supported on %s", runtime.GOOS)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("capture failed: %w (%s)", err, string(out))
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return map[string]any{
		"image_base64": base64.StdEncoding.EncodeToString(data),
		"size":         len(data),
	}, nil
}

var (
	_ domain.Tool = (*MoveMouseTool)(nil)
	_ domain.Tool = (*ClickTool)(nil)
	_ domain.Tool = (*TypeTextTool)(nil)
	_ domain.Tool = (*ScreenshotTool)(nil)
)
