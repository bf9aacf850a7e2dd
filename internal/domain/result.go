package domain

import "encoding/json"

// ErrorKind classifies a tool execution failure.
type ErrorKind string

const (
	ErrUnknownTool  ErrorKind = "unknown_tool"
	ErrBadArguments ErrorKind = "bad_arguments"
	ErrException    ErrorKind = "exception"
	ErrDisabled     ErrorKind = "disabled"
)

// ResultError describes a classified tool failure.
type ResultError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message,omitempty"`
}

// Result is the outcome of a tool execution. It is always a value: failures
// are carried in Err, never raised past the executor boundary.
type Result struct {
	Status  string         `json:"status"`
	Payload map[string]any `json:"payload,omitempty"`
	Err     *ResultError   `json:"error,omitempty"`
}

// Success wraps a handler payload as a successful result.
func Success(payload map[string]any) Result {
	return Result{Status: "ok", Payload: payload}
}

// Failure builds a classified error result.
func Failure(kind ErrorKind, message string) Result {
	return Result{Status: "error", Err: &ResultError{Kind: kind, Message: message}}
}

// OK reports whether the execution succeeded.
func (r Result) OK() bool { return r.Err == nil }

// JSON renders the result for conversation turns and transport replies.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"status":"error","error":{"kind":"exception","message":"unserializable result"}}`
	}
	return string(data)
}
