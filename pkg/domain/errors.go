package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEntityNotFound is returned when an entity ID cannot be resolved by the store.
	ErrEntityNotFound = errors.New("passage: entity not found")
	// ErrEntityExists is returned when creating an entity with an ID that is already taken.
	ErrEntityExists = errors.New("passage: entity already exists")
	// ErrGraphNotFound is returned when an entity references a graph that was never registered.
	// This is a configuration fault, not a caller rejection.
	ErrGraphNotFound = errors.New("passage: graph not registered")
)

// IllegalTransitionError reports a request for an event that has no edge
// from the entity's current state. The entity is left unchanged.
type IllegalTransitionError struct {
	Graph   string
	State   string
	Event   string
	Failure ResolveFailure
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("passage: illegal transition %q from state %q in graph %q (%s)",
		e.Event, e.State, e.Graph, e.Failure)
}

// GuardError reports a guard veto. Reason is the human-readable
// explanation produced by the failing guard.
type GuardError struct {
	Guard  string
	Reason string
}

func (e *GuardError) Error() string {
	if e.Guard == "" {
		return fmt.Sprintf("passage: guard rejected: %s", e.Reason)
	}
	return fmt.Sprintf("passage: guard %q rejected: %s", e.Guard, e.Reason)
}

// CallbackError reports a callback failure. Before-phase failures abort
// the transition (late-guard semantics); after-phase failures are captured
// as warnings on an otherwise successful result.
type CallbackError struct {
	Callback string
	Phase    string
	Err      error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("passage: %s-callback %q failed: %v", e.Phase, e.Callback, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// VersionConflictError reports an optimistic lock failure: the caller's
// expected version no longer matches the stored version. Both numbers are
// carried so the caller can decide whether to refetch and retry.
type VersionConflictError struct {
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("passage: version conflict: expected %d, actual %d", e.Expected, e.Actual)
}
