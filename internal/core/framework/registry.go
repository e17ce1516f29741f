package framework

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// Registry Errors
// =============================================================================

var (
	// ErrUnknownFramework is returned when no handler is registered for a name.
	ErrUnknownFramework = errors.New("unknown framework")

	// ErrDuplicateFramework is returned when a name is registered twice.
	ErrDuplicateFramework = errors.New("framework already registered")
)

// =============================================================================
// Registry
// =============================================================================

// Registry holds the available framework handlers. It replaces name
// switching in the orchestrator: new frameworks register a Handler and
// nothing else changes.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under its own name. Names are case-insensitive.
func (r *Registry) Register(h Handler) error {
	name := strings.ToLower(h.Name())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFramework, name)
	}
	r.handlers[name] = h
	return nil
}

// Get returns the handler registered under name.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFramework, name)
	}
	return h, nil
}

// Names returns the registered framework names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
