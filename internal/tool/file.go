package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"alfred/internal/domain"
)

// resolvePath resolves a file path relative to the workspace and prevents
// traversal outside it.
func resolvePath(workspace, path string) (string, error) {
	path = strings.TrimSpace(path)
	if !filepath.IsAbs(path) && workspace != "" {
		path = filepath.Join(workspace, path)
	}
	resolved, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if workspace != "" {
		wsAbs, err := filepath.Abs(workspace)
		if err != nil {
			return "", fmt.Errorf("resolve workspace: %w", err)
		}
		// Containment compares symlink-resolved paths: a link placed inside
		// the workspace must not reach outside it.
		wsReal := evalExisting(wsAbs)
		real := evalExisting(resolved)
		if !strings.HasPrefix(real, wsReal+string(filepath.Separator)) && real != wsReal {
			return "", fmt.Errorf("%w: path %q is outside workspace", ErrInvalidArgs, path)
		}
	}
	return resolved, nil
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// rejoins the not-yet-existing remainder lexically.
func evalExisting(path string) string {
	remainder := ""
	for p := path; ; {
		if real, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(real, remainder)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path
		}
		remainder = filepath.Join(filepath.Base(p), remainder)
		p = parent
	}
}

// --- ReadFileTool ---

// ReadFileTool reads a file under the workspace. Text content is returned
// as-is; binary content falls back to base64.
type ReadFileTool struct {
	workspace string
}

func NewReadFileTool(workspace string) *ReadFileTool {
	return &ReadFileTool{workspace: workspace}
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Read a file under the workspace and return its contents (text, or base64 for binary)."
}
func (t *ReadFileTool) Sensitive() bool { return false }
func (t *ReadFileTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"path":      {Type: "string", Description: "File path relative to the workspace"},
			"as_base64": {Type: "boolean", Description: "Force base64 encoding of the contents"},
		},
		[]string{"path"},
	)
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	path := ArgsString(args, "path")
	if path == "" {
		return nil, fmt.Errorf("%w: missing argument: path", ErrInvalidArgs)
	}
	resolved, err := resolvePath(t.workspace, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if ArgsBool(args, "as_base64") || !utf8.Valid(data) {
		return map[string]any{
			"content_base64": base64.StdEncoding.EncodeToString(data),
			"path":           resolved,
		}, nil
	}
	return map[string]any{"content": string(data), "path": resolved}, nil
}

// --- WriteFileTool ---

// WriteFileTool writes text content to a workspace file, creating parent
// directories as needed. Marked sensitive: writes require confirmation when
// proposed by the model.
type WriteFileTool struct {
	workspace string
}

func NewWriteFileTool(workspace string) *WriteFileTool {
	return &WriteFileTool{workspace: workspace}
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write text content to a file under the workspace. Overwrites by default."
}
func (t *WriteFileTool) Sensitive() bool { return true }
func (t *WriteFileTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"path":      {Type: "string", Description: "File path relative to the workspace"},
			"content":   {Type: "string", Description: "Content to write"},
			"overwrite": {Type: "boolean", Description: "Allow overwriting an existing file (default true)"},
		},
		[]string{"path", "content"},
	)
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	path := ArgsString(args, "path")
	if path == "" {
		return nil, fmt.Errorf("%w: missing argument: path", ErrInvalidArgs)
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing argument: content", ErrInvalidArgs)
	}
	resolved, err := resolvePath(t.workspace, path)
	if err != nil {
		return nil, err
	}
	if overwrite, present := args["overwrite"].(bool); present && !overwrite {
		if _, err := os.Stat(resolved); err == nil {
			return nil, fmt.Errorf("%w: file exists: %s", ErrInvalidArgs, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	return map[string]any{"status": "written", "path": resolved, "size": len(content)}, nil
}

// --- ListFilesTool ---

// ListFilesTool lists one directory level under the workspace.
type ListFilesTool struct {
	workspace string
}

func NewListFilesTool(workspace string) *ListFilesTool {
	return &ListFilesTool{workspace: workspace}
}

func (t *ListFilesTool) Name() string { return "list_files" }
func (t *ListFilesTool) Description() string {
	return "List files and directories under a workspace path. Use '.' for the workspace root."
}
func (t *ListFilesTool) Sensitive() bool { return false }
func (t *ListFilesTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"path": {Type: "string", Description: "Directory path to list (default '.')"},
		},
		nil,
	)
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	path := ArgsString(args, "path")
	if path == "" {
		path = "."
	}
	resolved, err := resolvePath(t.workspace, path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("list dir: %w", err)
	}
	listing := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{"name": e.Name(), "is_dir": e.IsDir()}
		if info, err := e.Info(); err == nil && !e.IsDir() {
			item["size"] = info.Size()
		}
		listing = append(listing, item)
	}
	return map[string]any{"path": resolved, "entries": listing}, nil
}

// --- ListWorkspaceTool ---

// ListWorkspaceTool lists every file under the workspace, recursively.
type ListWorkspaceTool struct {
	workspace string
}

func NewListWorkspaceTool(workspace string) *ListWorkspaceTool {
	return &ListWorkspaceTool{workspace: workspace}
}

func (t *ListWorkspaceTool) Name() string { return "list_workspace_files" }
func (t *ListWorkspaceTool) Description() string {
	return "List all files in the workspace (recursive)."
}
func (t *ListWorkspaceTool) Sensitive() bool            { return false }
func (t *ListWorkspaceTool) Parameters() map[string]any { return ToolParameters(nil, nil) }

func (t *ListWorkspaceTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	root, err := filepath.Abs(t.workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	var files []map[string]any
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, map[string]any{"path": rel, "is_dir": d.IsDir()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}
	return map[string]any{"files": files}, nil
}

// Compile-time interface checks.
var (
	_ domain.Tool = (*ReadFileTool)(nil)
	_ domain.Tool = (*WriteFileTool)(nil)
	_ domain.Tool = (*ListFilesTool)(nil)
	_ domain.Tool = (*ListWorkspaceTool)(nil)
)
