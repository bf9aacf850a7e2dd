package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"alfred/internal/domain"
	"alfred/internal/security"
)

// ErrInvalidArgs marks handler failures caused by a bad argument shape.
// Handlers wrap it so the executor can classify the result.
var ErrInvalidArgs = errors.New("invalid arguments")

// Registry holds all available tools and executes them. Registration happens
// at startup; lookup is total — an unknown name yields an error result, not
// a fault.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	order  []string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
	r.logger.Debug("registered tool", "name", t.Name(), "sensitive", t.Sensitive())
}

// Lookup returns the tool registered under name, or nil.
func (r *Registry) Lookup(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Schemas returns the declarative tool catalogue in registration order.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		schemas = append(schemas, domain.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Sensitive:   t.Sensitive(),
			Parameters:  t.Parameters(),
		})
	}
	return schemas
}

// Sensitive reports the sensitivity flag for name. Unknown names are treated
// as not sensitive; the unknown-tool error surfaces at execution time.
func (r *Registry) Sensitive(name string) bool {
	t := r.Lookup(name)
	return t != nil && t.Sensitive()
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Execute runs a tool by name and normalizes every outcome into a Result.
// Handler errors and panics never propagate past this boundary.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res domain.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			res = domain.Failure(domain.ErrException, fmt.Sprintf("tool %s panicked: %v", name, rec))
		}
	}()

	t := r.Lookup(name)
	if t == nil {
		return domain.Failure(domain.ErrUnknownTool, fmt.Sprintf("unknown tool: %s", name))
	}
	if args == nil {
		args = make(map[string]any)
	}

	payload, err := t.Execute(ctx, args)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrDisabled):
			return domain.Failure(domain.ErrDisabled, err.Error())
		case errors.Is(err, ErrInvalidArgs):
			return domain.Failure(domain.ErrBadArguments, err.Error())
		default:
			return domain.Failure(domain.ErrException, err.Error())
		}
	}
	return domain.Success(payload)
}

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
}

// ToolParameters builds a JSON Schema "parameters" object for a tool.
func ToolParameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ArgsString extracts a string argument, serializing non-string values.
func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgsInt extracts an integer argument. JSON numbers arrive as float64.
func ArgsInt(args map[string]any, key string) (int, bool) {
	if args == nil {
		return 0, false
	}
	switch n := args[key].(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// ArgsBool extracts a boolean argument, defaulting to false.
func ArgsBool(args map[string]any, key string) bool {
	if args == nil {
		return false
	}
	b, _ := args[key].(bool)
	return b
}
