package tool

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadFile_Text(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "note.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadFileTool(ws)
	out, err := tool.Execute(context.Background(), map[string]any{"path": "note.txt"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["content"] != "hello" {
		t.Fatalf("unexpected content: %+v", out)
	}
}

func TestReadFile_BinaryFallsBackToBase64(t *testing.T) {
	ws := t.TempDir()
	raw := []byte{0xff, 0xfe, 0x00, 0x01}
	if err := os.WriteFile(filepath.Join(ws, "blob.bin"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadFileTool(ws)
	out, err := tool.Execute(context.Background(), map[string]any{"path": "blob.bin"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	encoded, ok := out["content_base64"].(string)
	if !ok {
		t.Fatalf("expected base64 content: %+v", out)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || string(decoded) != string(raw) {
		t.Fatalf("base64 round trip failed: %v", err)
	}
}

func TestReadFile_MissingPathArg(t *testing.T) {
	tool := NewReadFileTool(t.TempDir())
	_, err := tool.Execute(context.Background(), map[string]any{})
	if !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestReadFile_EscapeBlocked(t *testing.T) {
	tool := NewReadFileTool(t.TempDir())
	_, err := tool.Execute(context.Background(), map[string]any{"path": "../../etc/passwd"})
	if !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("traversal must be rejected as invalid args, got %v", err)
	}
}

func TestWriteFile_CreatesParentDirs(t *testing.T) {
	ws := t.TempDir()
	tool := NewWriteFileTool(ws)

	out, err := tool.Execute(context.Background(), map[string]any{
		"path":    "sub/dir/new.txt",
		"content": "payload",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["status"] != "written" {
		t.Fatalf("unexpected result: %+v", out)
	}

	data, err := os.ReadFile(filepath.Join(ws, "sub", "dir", "new.txt"))
	if err != nil || string(data) != "payload" {
		t.Fatalf("file not written: %v", err)
	}
}

func TestWriteFile_OverwriteFalseProtectsExisting(t *testing.T) {
	ws := t.TempDir()
	existing := filepath.Join(ws, "keep.txt")
	if err := os.WriteFile(existing, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewWriteFileTool(ws)
	_, err := tool.Execute(context.Background(), map[string]any{
		"path":      "keep.txt",
		"content":   "clobber",
		"overwrite": false,
	})
	if !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected invalid args for protected overwrite, got %v", err)
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "original" {
		t.Fatal("protected file was overwritten")
	}
}

func TestWriteFile_IsSensitive(t *testing.T) {
	if !NewWriteFileTool("").Sensitive() {
		t.Fatal("write_file must be sensitive")
	}
}

func TestListFiles_Listing(t *testing.T) {
	ws := t.TempDir()
	os.WriteFile(filepath.Join(ws, "a.txt"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(ws, "subdir"), 0o755)

	tool := NewListFilesTool(ws)
	out, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	entries, ok := out["entries"].([]map[string]any)
	if !ok || len(entries) != 2 {
		t.Fatalf("unexpected entries: %+v", out)
	}
}

func TestListWorkspace_Recursive(t *testing.T) {
	ws := t.TempDir()
	os.MkdirAll(filepath.Join(ws, "a", "b"), 0o755)
	os.WriteFile(filepath.Join(ws, "a", "b", "deep.txt"), []byte("x"), 0o644)

	tool := NewListWorkspaceTool(ws)
	out, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	files, ok := out["files"].([]map[string]any)
	if !ok {
		t.Fatalf("unexpected shape: %+v", out)
	}
	var found bool
	for _, f := range files {
		if f["path"] == filepath.Join("a", "b", "deep.txt") {
			found = true
		}
	}
	if !found {
		t.Fatalf("deep file not listed: %+v", files)
	}
}

func TestResolvePath_AbsoluteInsideWorkspace(t *testing.T) {
	ws := t.TempDir()
	inside := filepath.Join(ws, "file.txt")
	resolved, err := resolvePath(ws, inside)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != inside {
		t.Fatalf("unexpected resolution: %q", resolved)
	}
}

func TestResolvePath_AbsoluteOutsideRejected(t *testing.T) {
	if _, err := resolvePath(t.TempDir(), "/etc/passwd"); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestResolvePath_SymlinkEscapeRejected(t *testing.T) {
	ws := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(ws, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := resolvePath(ws, filepath.Join("link", "secret.txt")); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("symlink escape must be rejected as invalid args, got %v", err)
	}
}

func TestResolvePath_SymlinkInsideWorkspaceAllowed(t *testing.T) {
	ws := t.TempDir()
	if err := os.Mkdir(filepath.Join(ws, "real"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(ws, "real"), filepath.Join(ws, "alias")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := resolvePath(ws, filepath.Join("alias", "new.txt")); err != nil {
		t.Fatalf("internal symlink must resolve: %v", err)
	}
}
