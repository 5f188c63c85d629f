// Package runtime contains the core transition evaluator. It is wrapped
// by the public passage.Engine facade and never imported by adapters
// directly.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gatewright/passage/internal/logging"
	"github.com/gatewright/passage/pkg/callback"
	"github.com/gatewright/passage/pkg/domain"
	"github.com/gatewright/passage/pkg/guard"
	"github.com/gatewright/passage/pkg/ports"
	"github.com/google/uuid"
)

// Engine evaluates transition requests against registered graphs.
//
// Each Apply call is a single short-lived read-check-write unit of work.
// The engine holds no entity-wide lock while guards or callbacks run; the
// version gate is deferred to the store's atomic compare-and-swap, so slow
// guards never block other readers.
type Engine struct {
	store     ports.Store
	graphs    map[string]*domain.Graph
	guards    *guard.Registry
	callbacks *callback.Registry
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	now       func() time.Time
	logCap    int
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the clock used for log entry timestamps (primarily
// for testing).
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogCap sets the transition log capacity for newly created entities.
func WithLogCap(cap int) EngineOption {
	return func(e *Engine) {
		if cap > 0 {
			e.logCap = cap
		}
	}
}

// NewEngine wires the evaluator. The graph set, guard registry, and
// callback registry are assembled once at process start and owned by the
// engine from then on; there is no runtime re-registration.
func NewEngine(store ports.Store, graphs map[string]*domain.Graph, guards *guard.Registry, callbacks *callback.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		graphs:    graphs,
		guards:    guards,
		callbacks: callbacks,
		logger:    logging.NewNop(),
		now:       time.Now,
		logCap:    domain.DefaultLogCap,
	}
	if e.graphs == nil {
		e.graphs = make(map[string]*domain.Graph)
	}
	if e.guards == nil {
		e.guards = guard.NewRegistry()
	}
	if e.callbacks == nil {
		e.callbacks = callback.NewRegistry()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create mints a new entity governed by the named graph, at the graph's
// initial state with version 0 and an empty log.
func (e *Engine) Create(ctx context.Context, graphName string) (*domain.Snapshot, error) {
	g, ok := e.graphs[graphName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, graphName)
	}

	snap := domain.NewSnapshot(uuid.NewString(), g.Name(), g.Initial(), e.logCap)
	if err := e.store.Create(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to create entity: %w", err)
	}

	e.logger.Debug("entity created", "entity_id", snap.ID, "graph", g.Name(), "state", snap.State)
	return snap, nil
}

// Get loads an entity snapshot together with the transition names allowed
// from its current state.
func (e *Engine) Get(ctx context.Context, entityID string) (*domain.Snapshot, []string, error) {
	snap, err := e.store.Load(ctx, entityID)
	if err != nil {
		return nil, nil, err
	}
	g, ok := e.graphs[snap.GraphName]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, snap.GraphName)
	}
	return snap, g.PossibleTransitions(snap.State), nil
}

// Graph returns a registered graph by name.
func (e *Engine) Graph(name string) (*domain.Graph, bool) {
	g, ok := e.graphs[name]
	return g, ok
}

// GraphNames returns the registered graph names, sorted.
func (e *Engine) GraphNames() []string {
	names := make([]string, 0, len(e.graphs))
	for name := range e.graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply executes one guarded transition request:
//
//	load -> resolve -> guards -> before-callbacks -> version gate ->
//	atomic commit -> after-callbacks
//
// Every rejection appends a log entry with the matching outcome, so the
// audit trail captures refused attempts as well as commits. Rejections are
// returned as typed errors (IllegalTransitionError, GuardError,
// CallbackError, VersionConflictError); only store faults and
// configuration errors propagate as plain wrapped errors.
func (e *Engine) Apply(ctx context.Context, entityID, event string, expectedVersion int64, appContext map[string]any) (*domain.Result, error) {
	started := e.now()

	snap, err := e.store.Load(ctx, entityID)
	if err != nil {
		return nil, err
	}

	g, ok := e.graphs[snap.GraphName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, snap.GraphName)
	}

	// Resolve before anything else: there is no point evaluating guards or
	// versions for a move that cannot exist.
	to, failure := g.Resolve(snap.State, event)
	if failure != domain.ResolveOK {
		rejErr := &domain.IllegalTransitionError{
			Graph:   g.Name(),
			State:   snap.State,
			Event:   event,
			Failure: failure,
		}
		e.recordRejection(ctx, snap, event, "", domain.OutcomeRejectedIllegal, failure.String(), started)
		return nil, rejErr
	}

	guardIn := guard.Input{
		Graph:   g.Name(),
		Event:   event,
		From:    snap.State,
		To:      to,
		Context: appContext,
	}
	if err := e.guards.Evaluate(ctx, guardIn); err != nil {
		var gerr *domain.GuardError
		detail := err.Error()
		if errors.As(err, &gerr) {
			detail = gerr.Reason
		}
		e.recordRejection(ctx, snap, event, to, domain.OutcomeRejectedGuard, detail, started)
		return nil, err
	}

	cbEvent := callback.Event{
		Graph:      g.Name(),
		Transition: event,
		From:       snap.State,
		To:         to,
		Snapshot:   snap,
		Context:    appContext,
	}
	if err := e.callbacks.FireBefore(ctx, cbEvent); err != nil {
		// A before-callback veto is a late guard: same outcome, no commit.
		e.recordRejection(ctx, snap, event, to, domain.OutcomeRejectedGuard, err.Error(), started)
		return nil, err
	}

	if snap.Version != expectedVersion {
		conflict := &domain.VersionConflictError{Expected: expectedVersion, Actual: snap.Version}
		e.recordRejection(ctx, snap, event, to, domain.OutcomeRejectedVersionConflict, conflict.Error(), started)
		return nil, conflict
	}

	entry := domain.LogEntry{
		Timestamp: e.now(),
		Event:     event,
		FromState: snap.State,
		ToState:   to,
		Outcome:   domain.OutcomeCommitted,
	}
	updated, err := e.store.CommitIfVersionMatches(ctx, entityID, expectedVersion, to, entry)
	if err != nil {
		var conflict *domain.VersionConflictError
		if errors.As(err, &conflict) {
			// A racing caller won between our load and the commit.
			e.recordRejection(ctx, snap, event, to, domain.OutcomeRejectedVersionConflict, conflict.Error(), started)
			return nil, conflict
		}
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	result := &domain.Result{
		EntityID:          updated.ID,
		Graph:             g.Name(),
		Event:             event,
		From:              snap.State,
		To:                updated.State,
		NewVersion:        updated.Version,
		AllowedNextEvents: g.PossibleTransitions(updated.State),
		CompletedAt:       e.now(),
	}

	cbEvent.Snapshot = updated
	for _, cbErr := range e.callbacks.FireAfter(ctx, cbEvent) {
		result.Warnings = append(result.Warnings, cbErr.Error())
		e.logger.Warn("after-callback failed",
			"entity_id", entityID,
			"graph", g.Name(),
			"event", event,
			"err", cbErr,
		)
	}

	e.logger.Debug("transition committed",
		"entity_id", entityID,
		"graph", g.Name(),
		"event", event,
		"from", result.From,
		"to", result.To,
		"version", result.NewVersion,
	)

	if e.hooks.OnCommit != nil {
		e.hooks.OnCommit(ctx, &domain.TransitionEvent{
			Timestamp: result.CompletedAt,
			EntityID:  entityID,
			Graph:     g.Name(),
			Event:     event,
			From:      result.From,
			To:        result.To,
			Version:   result.NewVersion,
			Outcome:   domain.OutcomeCommitted,
			Duration:  e.now().Sub(started),
		})
	}

	return result, nil
}

// recordRejection appends the audit entry for a refused attempt and fires
// the rejection hook. A store failure here is logged but does not mask the
// rejection itself; the caller still receives the typed rejection error.
func (e *Engine) recordRejection(ctx context.Context, snap *domain.Snapshot, event, to string, outcome domain.Outcome, detail string, started time.Time) {
	entry := domain.LogEntry{
		Timestamp: e.now(),
		Event:     event,
		FromState: snap.State,
		ToState:   to,
		Outcome:   outcome,
		Detail:    detail,
	}
	if err := e.store.AppendRejection(ctx, snap.ID, entry); err != nil {
		e.logger.Warn("failed to record rejected transition",
			"entity_id", snap.ID,
			"event", event,
			"outcome", outcome,
			"err", err,
		)
	}

	if e.hooks.OnRejection != nil {
		e.hooks.OnRejection(ctx, &domain.TransitionEvent{
			Timestamp: entry.Timestamp,
			EntityID:  snap.ID,
			Graph:     snap.GraphName,
			Event:     event,
			From:      snap.State,
			To:        to,
			Version:   snap.Version,
			Outcome:   outcome,
			Detail:    detail,
			Duration:  e.now().Sub(started),
		})
	}
}
