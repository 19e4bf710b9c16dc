// Package modules defines the capability contract between the trigger
// engine and the downstream capability modules (Learning, Hiring,
// Performance, Talent, Onboarding, Compliance, ...).
//
// Modules are opaque to the engine: a handler is registered once at
// startup under its module identifier and exposes a single Handle method.
// Handlers must be total (never panic through) and honor ctx cancellation
// so the dispatcher's per-call timeout can cut them off.
package modules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// ErrUnknownModule is returned when a definition targets a module that was
// never registered. The dispatcher records it as a failed outcome.
var ErrUnknownModule = errors.New("unknown target module")

// Handler is the single capability a module exposes to the engine.
type Handler interface {
	Handle(ctx context.Context, tc domain.TriggerContext) domain.Outcome
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, tc domain.TriggerContext) domain.Outcome

func (f HandlerFunc) Handle(ctx context.Context, tc domain.TriggerContext) domain.Outcome {
	return f(ctx, tc)
}

// Registry maps module identifiers to handlers. Registration happens at
// startup; lookups are concurrent and read-mostly.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a module identifier. Duplicate registration
// is a programming error and is rejected immediately rather than silently
// replacing the earlier handler.
func (r *Registry) Register(module string, h Handler) error {
	if module == "" {
		return fmt.Errorf("register: empty module identifier")
	}
	if h == nil {
		return fmt.Errorf("register %q: nil handler", module)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[module]; ok {
		return fmt.Errorf("register %q: already registered", module)
	}
	r.handlers[module] = h
	return nil
}

// Resolve returns the handler for a module, or ErrUnknownModule.
func (r *Registry) Resolve(module string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[module]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, module)
	}
	return h, nil
}

// Modules lists the registered identifiers, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
