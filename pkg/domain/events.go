package domain

import (
	"context"
	"time"
)

// TransitionEvent is emitted to lifecycle hooks for every transition
// attempt, committed or rejected.
type TransitionEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	EntityID  string        `json:"entity_id"`
	Graph     string        `json:"graph"`
	Event     string        `json:"event"`
	From      string        `json:"from"`
	To        string        `json:"to,omitempty"`
	Version   int64         `json:"version"`
	Outcome   Outcome       `json:"outcome"`
	Detail    string        `json:"detail,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// LifecycleHooks defines observability callbacks invoked by the engine.
// Hooks must be fast and must not call back into the engine; they run
// synchronously on the request path.
type LifecycleHooks struct {
	OnCommit    func(context.Context, *TransitionEvent)
	OnRejection func(context.Context, *TransitionEvent)
}
