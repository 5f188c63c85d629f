/*
Package callback provides the callback registry: named side-effect hooks
bound to specific transitions at configuration time.

Before-callbacks run after guards pass but before the commit; any failure
aborts the transition. After-callbacks run strictly after the new state and
version are durably committed; their failures are collected and reported
but never roll back the commit.

Callbacks are attached as explicit typed lists per transition and invoked
directly in registration order. There is no publish/subscribe bus.
*/
package callback

import (
	"context"
	"sync"

	"github.com/gatewright/passage/pkg/domain"
)

// Phase identifies when a callback fires relative to the commit.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// Event is the payload handed to callbacks.
type Event struct {
	Graph      string
	Transition string
	From       string
	To         string
	// Snapshot is the entity as loaded for before-callbacks and as
	// committed for after-callbacks. Callbacks must treat it as read-only.
	Snapshot *domain.Snapshot
	Context  map[string]any
}

// Func is a callback implementation.
type Func func(ctx context.Context, ev Event) error

type binding struct {
	name string
	fn   Func
}

// Registry holds per-transition callback lists. Registration happens
// during process initialization; firing is read-only and safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	before map[string][]binding
	after  map[string][]binding
}

// NewRegistry creates an empty callback registry.
func NewRegistry() *Registry {
	return &Registry{
		before: make(map[string][]binding),
		after:  make(map[string][]binding),
	}
}

// Register binds a named callback to a transition in a graph for the given
// phase.
func (r *Registry) Register(graph, transition string, phase Phase, name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := key(graph, transition)
	switch phase {
	case PhaseAfter:
		r.after[key] = append(r.after[key], binding{name: name, fn: fn})
	default:
		r.before[key] = append(r.before[key], binding{name: name, fn: fn})
	}
}

// FireBefore runs before-callbacks in registration order, stopping at the
// first failure, which is returned as a *domain.CallbackError.
func (r *Registry) FireBefore(ctx context.Context, ev Event) error {
	for _, b := range r.bindings(r.before, ev) {
		if err := b.fn(ctx, ev); err != nil {
			return &domain.CallbackError{Callback: b.name, Phase: string(PhaseBefore), Err: err}
		}
	}
	return nil
}

// FireAfter runs all after-callbacks in registration order. Failures do
// not stop the remaining callbacks; every failure is collected and
// returned so the engine can log and surface them as warnings.
func (r *Registry) FireAfter(ctx context.Context, ev Event) []error {
	var errs []error
	for _, b := range r.bindings(r.after, ev) {
		if err := b.fn(ctx, ev); err != nil {
			errs = append(errs, &domain.CallbackError{Callback: b.name, Phase: string(PhaseAfter), Err: err})
		}
	}
	return errs
}

func (r *Registry) bindings(m map[string][]binding, ev Event) []binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return m[key(ev.Graph, ev.Transition)]
}

func key(graph, transition string) string {
	return graph + "::" + transition
}
