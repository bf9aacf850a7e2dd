package assistant

import "testing"

func TestDecodeDirective_Valid(t *testing.T) {
	d, ok := decodeDirective(`{"tool_call": {"name": "read_file", "args": {"path": "a.txt"}}}`)
	if !ok {
		t.Fatal("expected directive")
	}
	if d.Name != "read_file" || d.Args["path"] != "a.txt" {
		t.Fatalf("unexpected directive: %+v", d)
	}
}

func TestDecodeDirective_NilArgsBecomeEmptyMap(t *testing.T) {
	d, ok := decodeDirective(`{"tool_call": {"name": "read_file"}}`)
	if !ok {
		t.Fatal("expected directive")
	}
	if d.Args == nil || len(d.Args) != 0 {
		t.Fatalf("expected empty args map, got %+v", d.Args)
	}
}

func TestDecodeDirective_PlainTextRejected(t *testing.T) {
	if _, ok := decodeDirective("Certainly, Sir. The weather is fine."); ok {
		t.Fatal("plain text must not decode")
	}
}

func TestDecodeDirective_EmptyNameRejected(t *testing.T) {
	if _, ok := decodeDirective(`{"tool_call": {"name": ""}}`); ok {
		t.Fatal("empty name must not decode")
	}
}

func TestDecodeDirective_OtherJSONRejected(t *testing.T) {
	if _, ok := decodeDirective(`{"weather": "sunny"}`); ok {
		t.Fatal("unrelated JSON must not decode")
	}
}

func TestDecodeDirective_WhitespaceAndFence(t *testing.T) {
	reply := "  ```json\n{\"tool_call\": {\"name\": \"x\", \"args\": {}}}\n```  "
	// leading whitespace is trimmed before fence stripping
	d, ok := decodeDirective(reply)
	if !ok || d.Name != "x" {
		t.Fatalf("fenced directive not decoded: %+v", d)
	}
}

func TestStripCodeFence_NoFence(t *testing.T) {
	in := `{"a": 1}`
	if out := stripCodeFence(in); out != in {
		t.Fatalf("unfenced input must pass through, got %q", out)
	}
}
