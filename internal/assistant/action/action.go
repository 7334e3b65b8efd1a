// Package action defines the contract between the assistant and the business
// actions it governs, and the registry that binds intent names to handlers.
//
// Action bodies are ordinary business logic owned elsewhere; the assistant
// depends only on the Handler shape. The registry is populated once at
// startup and injected into the executor and the conversation engine — no
// late-bound string lookups at call time.
package action

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/identity"
)

// Result is what an action reports back on success.
type Result struct {
	// Success is false when the action completed but declined to act.
	Success bool `json:"success"`
	// NarrativeLog is the human-readable outcome shown to the user.
	NarrativeLog string `json:"narrative_log"`
	// Data optionally carries structured output for API callers.
	Data map[string]any `json:"data,omitempty"`
}

// Handler executes one business action with the caller's own scoped
// credentials. Implementations must treat caller as the authority for
// tenant/space scoping; the assistant never hands an action elevated access.
type Handler interface {
	Execute(ctx context.Context, caller identity.Context, params map[string]string) (*Result, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, caller identity.Context, params map[string]string) (*Result, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, caller identity.Context, params map[string]string) (*Result, error) {
	return f(ctx, caller, params)
}

// Registration binds an intent name to its handler and the permission
// strings the caller must hold to run it.
type Registration struct {
	// Name is the action name referenced by intent definitions.
	Name string
	// RequiredPermissions are capability strings the permission guard
	// checks against the caller's context.
	RequiredPermissions []string
	// Handler runs the action.
	Handler Handler
}

// Registry maps action names to registrations. Register during startup;
// lookups afterwards are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewRegistry returns an empty action registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register adds a registration. Duplicate names and nil handlers are
// startup-time configuration mistakes and are rejected.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("action registry: name must not be empty")
	}
	if reg.Handler == nil {
		return fmt.Errorf("action registry: handler for %q must not be nil", reg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[reg.Name]; dup {
		return fmt.Errorf("action registry: duplicate action %q", reg.Name)
	}
	r.entries[reg.Name] = reg
	return nil
}

// Get returns the registration for name, reporting whether it exists.
func (r *Registry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	return reg, ok
}

// Names returns all registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
