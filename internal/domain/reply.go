package domain

// Reply is the tagged result of processing one user message. Exactly one of
// Text or Stream is set, decided by the caller's request mode — never
// inferred from the value itself.
type Reply struct {
	Text   string
	Stream <-chan string
}

// TextReply wraps a complete reply string.
func TextReply(s string) Reply { return Reply{Text: s} }

// StreamReply wraps a lazy, finite sequence of chunks whose concatenation
// equals the full reply. The channel is closed after the last chunk.
func StreamReply(ch <-chan string) Reply { return Reply{Stream: ch} }

// IsStream reports whether the reply carries a chunk stream.
func (r Reply) IsStream() bool { return r.Stream != nil }
