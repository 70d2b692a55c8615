// Package tools implements the agent's tool handlers and the dispatcher
// that maps tool names to them.
package tools

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrUnknownTool is returned by Dispatch for names with no handler.
var ErrUnknownTool = errors.New("unknown tool")

// Handler executes one tool call. args holds JSON-like values keyed by
// argument name; the result must be JSON-serializable.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// ArgumentError reports a tool argument the handler cannot use. Retrying
// the same call will not help.
type ArgumentError struct {
	Tool    string
	Message string
}

func (e *ArgumentError) Error() string {
	return e.Message
}

func argumentError(tool, format string, args ...any) error {
	return &ArgumentError{Tool: tool, Message: fmt.Sprintf(format, args...)}
}

// Registry is a map-backed tool dispatcher.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns a registry holding a copy of initial.
func NewRegistry(initial map[string]Handler) *Registry {
	handlers := make(map[string]Handler, len(initial))
	maps.Copy(handlers, initial)
	return &Registry{handlers: handlers}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}

// Dispatch runs the handler registered for name.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return handler(ctx, args)
}
