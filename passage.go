package passage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatewright/passage/internal/logging"
	"github.com/gatewright/passage/internal/runtime"
	"github.com/gatewright/passage/pkg/callback"
	"github.com/gatewright/passage/pkg/domain"
	"github.com/gatewright/passage/pkg/guard"
	"github.com/gatewright/passage/pkg/ports"
)

// Version is the library version, used by the CLI.
const Version = "0.3.1"

var (
	// ErrStoreRequired indicates New was called without a store.
	ErrStoreRequired = errors.New("passage: store is required")
	// ErrNoGraphs indicates New was called without any graph.
	ErrNoGraphs = errors.New("passage: at least one graph is required")
	// ErrDuplicateGraph indicates two graphs were registered under the same
	// name. Republishing a graph is a configuration error, never a runtime
	// mutation.
	ErrDuplicateGraph = errors.New("passage: duplicate graph")
)

// Engine is the high-level entry point for the Passage library. It wraps
// the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime   *runtime.Engine
	store     ports.Store
	graphs    map[string]*domain.Graph
	pending   []*domain.Graph
	guards    *guard.Registry
	callbacks *callback.Registry
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	clock     func() time.Time
	logCap    int
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithGraph registers a workflow graph. At least one graph is required;
// registering two graphs with the same name fails New.
func WithGraph(g *domain.Graph) Option {
	return func(e *Engine) {
		e.pending = append(e.pending, g)
	}
}

// WithGuards injects a pre-populated guard registry.
func WithGuards(reg *guard.Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.guards = reg
		}
	}
}

// WithCallbacks injects a pre-populated callback registry.
func WithCallbacks(reg *callback.Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.callbacks = reg
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLogCap sets the transition log capacity for new entities
// (default domain.DefaultLogCap).
func WithLogCap(cap int) Option {
	return func(e *Engine) {
		if cap > 0 {
			e.logCap = cap
		}
	}
}

// WithClock overrides the engine clock (primarily for testing).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// New assembles an Engine from a store and configuration options. All
// graphs, guards, and callbacks are bound here, once, at process start.
func New(store ports.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:     store,
		graphs:    make(map[string]*domain.Graph),
		guards:    guard.NewRegistry(),
		callbacks: callback.NewRegistry(),
		logger:    logging.NewNop(),
		clock:     time.Now,
		logCap:    domain.DefaultLogCap,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		return nil, ErrStoreRequired
	}
	for _, g := range e.pending {
		if _, exists := e.graphs[g.Name()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGraph, g.Name())
		}
		e.graphs[g.Name()] = g
	}
	e.pending = nil
	if len(e.graphs) == 0 {
		return nil, ErrNoGraphs
	}

	e.runtime = runtime.NewEngine(e.store, e.graphs, e.guards, e.callbacks,
		runtime.WithLogger(e.logger),
		runtime.WithClock(e.clock),
		runtime.WithLifecycleHooks(e.hooks),
		runtime.WithLogCap(e.logCap),
	)

	return e, nil
}

// CreateEntity mints a new entity governed by the named graph, at the
// graph's initial state with version 0 and an empty log.
func (e *Engine) CreateEntity(ctx context.Context, graphName string) (*domain.Snapshot, error) {
	return e.runtime.Create(ctx, graphName)
}

// GetEntity returns the entity snapshot and the transition names allowed
// from its current state.
func (e *Engine) GetEntity(ctx context.Context, entityID string) (*domain.Snapshot, []string, error) {
	return e.runtime.Get(ctx, entityID)
}

// ApplyTransition requests the named transition for an entity. The
// expectedVersion is the version the caller last observed; a mismatch at
// commit time yields a *domain.VersionConflictError so the caller can
// refetch and decide whether to retry. appContext is ambient request data
// made available to guards and callbacks.
func (e *Engine) ApplyTransition(ctx context.Context, entityID, event string, expectedVersion int64, appContext map[string]any) (*domain.Result, error) {
	return e.runtime.Apply(ctx, entityID, event, expectedVersion, appContext)
}

// Graph returns a registered graph by name.
func (e *Engine) Graph(name string) (*domain.Graph, bool) {
	return e.runtime.Graph(name)
}

// GraphNames returns the registered graph names, sorted.
func (e *Engine) GraphNames() []string {
	return e.runtime.GraphNames()
}

// Store returns the underlying entity store.
func (e *Engine) Store() ports.Store {
	return e.store
}
