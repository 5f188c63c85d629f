package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrGraphNameRequired indicates a graph was declared without a name.
	ErrGraphNameRequired = errors.New("passage: graph name required")
	// ErrStatesRequired indicates a graph declares no states.
	ErrStatesRequired = errors.New("passage: graph requires at least one state")
	// ErrStateNameRequired indicates a state entry is empty.
	ErrStateNameRequired = errors.New("passage: state name required")
	// ErrDuplicateState indicates the same state name was declared twice.
	ErrDuplicateState = errors.New("passage: duplicate state")
	// ErrTransitionNameRequired indicates a transition lacks a name.
	ErrTransitionNameRequired = errors.New("passage: transition name required")
	// ErrDuplicateTransition indicates the same transition name was declared twice.
	ErrDuplicateTransition = errors.New("passage: duplicate transition")
	// ErrUnknownState indicates a transition references a state that was not declared.
	ErrUnknownState = errors.New("passage: transition references unknown state")
	// ErrInitialStateInvalid indicates the initial state is missing or not a declared state.
	ErrInitialStateInvalid = errors.New("passage: invalid initial state")
)

// TransitionSpec declares one named transition: an edge (or set of edges
// sharing a name) from one or more source states to a single target state.
type TransitionSpec struct {
	Name string
	From []string
	To   string
}

// GraphSpec is the raw input to NewGraph. It is validated and compiled
// into an immutable Graph; the spec itself is never retained.
type GraphSpec struct {
	Name        string
	States      []string
	Initial     string
	Transitions []TransitionSpec
}

// Transition is a compiled, validated transition within a Graph.
type Transition struct {
	Name string
	From map[string]struct{}
	To   string
}

// Graph is a named, immutable workflow definition. Once constructed it is
// safe for concurrent readers without locking; there is no way to mutate
// states or transitions after NewGraph returns.
type Graph struct {
	name        string
	initial     string
	states      map[string]struct{}
	stateOrder  []string
	transitions map[string]Transition
}

// NewGraph validates and compiles a GraphSpec.
//
// Validation enforces: a non-empty name, at least one state, unique
// non-empty state names, unique non-empty transition names, every from/to
// state declared, and an initial state that is a member of the state set.
// If the spec omits Initial, the first declared state is used.
func NewGraph(spec GraphSpec) (*Graph, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, ErrGraphNameRequired
	}
	if len(spec.States) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStatesRequired, name)
	}

	states := make(map[string]struct{}, len(spec.States))
	order := make([]string, 0, len(spec.States))
	for idx, raw := range spec.States {
		state := strings.TrimSpace(raw)
		if state == "" {
			return nil, fmt.Errorf("%w at index %d", ErrStateNameRequired, idx)
		}
		if _, exists := states[state]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateState, state)
		}
		states[state] = struct{}{}
		order = append(order, state)
	}

	initial := strings.TrimSpace(spec.Initial)
	if initial == "" {
		initial = order[0]
	}
	if _, ok := states[initial]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrInitialStateInvalid, initial)
	}

	transitions := make(map[string]Transition, len(spec.Transitions))
	for idx, t := range spec.Transitions {
		tname := strings.TrimSpace(t.Name)
		if tname == "" {
			return nil, fmt.Errorf("%w at index %d", ErrTransitionNameRequired, idx)
		}
		if _, exists := transitions[tname]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTransition, tname)
		}

		to := strings.TrimSpace(t.To)
		if _, ok := states[to]; !ok {
			return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownState, tname, t.To)
		}
		from := make(map[string]struct{}, len(t.From))
		for _, f := range t.From {
			f = strings.TrimSpace(f)
			if _, ok := states[f]; !ok {
				return nil, fmt.Errorf("%w: %s <- %s", ErrUnknownState, tname, f)
			}
			from[f] = struct{}{}
		}
		if len(from) == 0 {
			return nil, fmt.Errorf("%w: %s has no source states", ErrUnknownState, tname)
		}

		transitions[tname] = Transition{Name: tname, From: from, To: to}
	}

	return &Graph{
		name:        name,
		initial:     initial,
		states:      states,
		stateOrder:  order,
		transitions: transitions,
	}, nil
}

// ResolveFailure explains why Resolve refused a (state, event) pair.
// Callers reject both failure modes identically; the distinction exists
// for diagnostics only.
type ResolveFailure int

const (
	// ResolveOK means the transition is defined from the given state.
	ResolveOK ResolveFailure = iota
	// ResolveUnknownEvent means no transition with that name exists at all.
	ResolveUnknownEvent
	// ResolveNotAllowed means the transition exists but its from set does
	// not contain the given state.
	ResolveNotAllowed
)

// String renders the failure for log entry details.
func (f ResolveFailure) String() string {
	switch f {
	case ResolveOK:
		return "ok"
	case ResolveUnknownEvent:
		return "unknown event"
	case ResolveNotAllowed:
		return "not allowed from state"
	default:
		return "unknown"
	}
}

// Name returns the graph's unique identifier.
func (g *Graph) Name() string { return g.name }

// Initial returns the designated initial state.
func (g *Graph) Initial() string { return g.initial }

// States returns the declared states in declaration order.
func (g *Graph) States() []string {
	out := make([]string, len(g.stateOrder))
	copy(out, g.stateOrder)
	return out
}

// HasState reports whether the state is declared in this graph.
func (g *Graph) HasState(state string) bool {
	_, ok := g.states[state]
	return ok
}

// Transitions returns the compiled transitions, sorted by name.
func (g *Graph) Transitions() []Transition {
	out := make([]Transition, 0, len(g.transitions))
	for _, t := range g.transitions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve looks up the target state for (from, event). Lookup is a
// case-sensitive exact match on the transition name, filtered to
// transitions whose from set contains the given state.
func (g *Graph) Resolve(from, event string) (string, ResolveFailure) {
	t, ok := g.transitions[event]
	if !ok {
		return "", ResolveUnknownEvent
	}
	if _, allowed := t.From[from]; !allowed {
		return "", ResolveNotAllowed
	}
	return t.To, ResolveOK
}

// PossibleTransitions returns the names of all transitions whose from set
// contains the given state, sorted for deterministic output. The result is
// computed on every call; it depends only on the immutable graph and the
// supplied state.
func (g *Graph) PossibleTransitions(state string) []string {
	var out []string
	for name, t := range g.transitions {
		if _, ok := t.From[state]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
