package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"alfred/internal/domain"
	"alfred/internal/security"
)

// Self-modification tools. Both are gated: without the self-modify flag they
// return a structured disabled error. The upgrade tool is additionally
// restricted to an allowlist of target files.

// --- ModifyCodeTool ---

// ModifyCodeTool overwrites a Go source file under the workspace, letting
// the assistant propose changes to its own code.
type ModifyCodeTool struct {
	workspace string
	gates     security.Gates
}

func NewModifyCodeTool(workspace string, gates security.Gates) *ModifyCodeTool {
	return &ModifyCodeTool{workspace: workspace, gates: gates}
}

func (t *ModifyCodeTool) Name() string { return "modify_code" }
func (t *ModifyCodeTool) Description() string {
	return "Overwrite a Go source file in the workspace to modify the assistant's code. Requires the self-modify gate."
}
func (t *ModifyCodeTool) Sensitive() bool { return true }
func (t *ModifyCodeTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"filename":    {Type: "string", Description: "Go source file path relative to the workspace"},
			"new_content": {Type: "string", Description: "Full replacement file content"},
		},
		[]string{"filename", "new_content"},
	)
}

func (t *ModifyCodeTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := t.gates.CheckSelfModify(); err != nil {
		return nil, err
	}
	filename := ArgsString(args, "filename")
	content, ok := args["new_content"].(string)
	if filename == "" || !ok {
		return nil, fmt.Errorf("%w: filename and new_content are required", ErrInvalidArgs)
	}
	if !strings.HasSuffix(filename, ".go") {
		return nil, fmt.Errorf("%w: only .go files can be modified", ErrInvalidArgs)
	}
	resolved, err := resolvePath(t.workspace, filename)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	return map[string]any{"status": "written", "path": resolved}, nil
}

// --- ApplyUpgradeTool ---

// upgradeAllowlist names the files the upgrade tool may overwrite. Anything
// else is rejected before the write is attempted.
var upgradeAllowlist = map[string]bool{
	"assistant.go": true,
	"prompt.go":    true,
	"tools.go":     true,
	"main.go":      true,
}

// ApplyUpgradeTool applies a code upgrade by overwriting an allowlisted
// system file with a provided snippet.
type ApplyUpgradeTool struct {
	workspace string
	gates     security.Gates
}

func NewApplyUpgradeTool(workspace string, gates security.Gates) *ApplyUpgradeTool {
	return &ApplyUpgradeTool{workspace: workspace, gates: gates}
}

func (t *ApplyUpgradeTool) Name() string { return "apply_upgrade" }
func (t *ApplyUpgradeTool) Description() string {
	return "Apply a system upgrade by overwriting an allowlisted file with the provided code. Requires the self-modify gate."
}
func (t *ApplyUpgradeTool) Sensitive() bool { return true }
func (t *ApplyUpgradeTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"target_file":  {Type: "string", Description: "Allowlisted file name to overwrite"},
			"code_snippet": {Type: "string", Description: "Replacement code"},
		},
		[]string{"target_file", "code_snippet"},
	)
}

func (t *ApplyUpgradeTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := t.gates.CheckSelfModify(); err != nil {
		return nil, err
	}
	target := ArgsString(args, "target_file")
	snippet, ok := args["code_snippet"].(string)
	if target == "" || !ok {
		return nil, fmt.Errorf("%w: target_file and code_snippet are required", ErrInvalidArgs)
	}
	if !upgradeAllowlist[target] {
		allowed := make([]string, 0, len(upgradeAllowlist))
		for name := range upgradeAllowlist {
			allowed = append(allowed, name)
		}
		return nil, fmt.Errorf("%w: target %q is not allowed (allowed: %s)",
			ErrInvalidArgs, target, strings.Join(allowed, ", "))
	}
	resolved, err := resolvePath(t.workspace, target)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(resolved, []byte(snippet), 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	return map[string]any{"status": "applied", "path": resolved}, nil
}

// --- UIStyleTool ---

// UIStyleTool writes ui_style.json under the workspace; the web UI reads it
// to adjust colors and sizes.
type UIStyleTool struct {
	workspace string
}

func NewUIStyleTool(workspace string) *UIStyleTool {
	return &UIStyleTool{workspace: workspace}
}

func (t *UIStyleTool) Name() string { return "update_ui_style" }
func (t *UIStyleTool) Description() string {
	return "Update the web UI style by writing ui_style.json in the workspace."
}
func (t *UIStyleTool) Sensitive() bool { return false }
func (t *UIStyleTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"bar_color": {Type: "string", Description: "Primary bar color"},
			"accent":    {Type: "string", Description: "Accent color"},
		},
		nil,
	)
}

func (t *UIStyleTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	resolved, err := resolvePath(t.workspace, "ui_style.json")
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode style: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return nil, fmt.Errorf("write style: %w", err)
	}
	return map[string]any{"status": "written", "path": resolved}, nil
}

var (
	_ domain.Tool = (*ModifyCodeTool)(nil)
	_ domain.Tool = (*ApplyUpgradeTool)(nil)
	_ domain.Tool = (*UIStyleTool)(nil)
)
