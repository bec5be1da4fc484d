// Package registry holds the activity type registry: a sync.RWMutex-guarded,
// read-heavy-after-startup lookup from activity type name to the Handler
// that executes it.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/flowforge/flowforge/pkg/api"
)

// Registry is a case-insensitive, read-mostly map from activity type name
// to Handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]api.Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]api.Handler)}
}

// Register adds or replaces the Handler for typeName. Lookups are
// case-insensitive.
func (r *Registry) Register(typeName string, h api.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(typeName)] = h
}

// Lookup returns the Handler registered for typeName, if any.
func (r *Registry) Lookup(typeName string) (api.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.ToLower(typeName)]
	return h, ok
}

// ErrUnknownActivityType returns an error naming typeName. The engine does
// not use it: when Lookup fails, it fails the instance with an
// api.InstanceError carrying api.CodeUnknownActivityType.
func ErrUnknownActivityType(typeName string) error {
	return fmt.Errorf("registry: unknown activity type %q", typeName)
}
