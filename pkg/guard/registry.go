/*
Package guard provides the guard registry: named, pure predicates that gate
whether a transition may commit.

Guards are registered once at configuration time, bound either to a
transition name or to a specific (from, to) state pair within a graph.
Evaluation runs all matching guards in registration order with AND
semantics, short-circuiting on the first failure so the caller receives a
single deterministic reason.
*/
package guard

import (
	"context"
	"sync"

	"github.com/gatewright/passage/pkg/domain"
)

// Input is the read-only view a guard receives. Context carries ambient
// request data supplied by the caller (for example "is this file type
// acceptable"); guards must not mutate entity state through it.
type Input struct {
	Graph   string
	Event   string
	From    string
	To      string
	Context map[string]any
}

// Func is a guard predicate. A nil return passes; a non-nil error vetoes
// the transition and its message becomes the rejection reason. Guards must
// be pure with respect to their input: no persistent side effects, and the
// same input always yields the same verdict.
type Func func(ctx context.Context, in Input) error

type binding struct {
	name string
	fn   Func
}

// Registry holds guard bindings. Registration happens during process
// initialization; evaluation is read-only and safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byEvent  map[string][]binding
	byStates map[string][]binding
}

// NewRegistry creates an empty guard registry.
func NewRegistry() *Registry {
	return &Registry{
		byEvent:  make(map[string][]binding),
		byStates: make(map[string][]binding),
	}
}

// Register binds a named guard to a transition name within a graph.
func (r *Registry) Register(graph, event, name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := eventKey(graph, event)
	r.byEvent[key] = append(r.byEvent[key], binding{name: name, fn: fn})
}

// RegisterForStates binds a named guard to a specific (from, to) pair
// within a graph, independent of the transition name.
func (r *Registry) RegisterForStates(graph, from, to, name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := statesKey(graph, from, to)
	r.byStates[key] = append(r.byStates[key], binding{name: name, fn: fn})
}

// Evaluate runs every guard matching the input: first those bound to the
// transition name, then those bound to the (from, to) pair, each group in
// registration order. The first failure aborts evaluation and is returned
// as a *domain.GuardError; nil means all guards passed.
func (r *Registry) Evaluate(ctx context.Context, in Input) error {
	r.mu.RLock()
	matched := make([]binding, 0,
		len(r.byEvent[eventKey(in.Graph, in.Event)])+len(r.byStates[statesKey(in.Graph, in.From, in.To)]))
	matched = append(matched, r.byEvent[eventKey(in.Graph, in.Event)]...)
	matched = append(matched, r.byStates[statesKey(in.Graph, in.From, in.To)]...)
	r.mu.RUnlock()

	for _, b := range matched {
		if err := b.fn(ctx, in); err != nil {
			if gerr, ok := err.(*domain.GuardError); ok {
				if gerr.Guard == "" {
					gerr.Guard = b.name
				}
				return gerr
			}
			return &domain.GuardError{Guard: b.name, Reason: err.Error()}
		}
	}
	return nil
}

func eventKey(graph, event string) string {
	return graph + "::" + event
}

func statesKey(graph, from, to string) string {
	return graph + "::" + from + "->" + to
}
