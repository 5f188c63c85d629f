package ports

import (
	"context"

	"github.com/gatewright/passage/pkg/domain"
)

// Store persists entity snapshots. Implementations must make
// CommitIfVersionMatches atomic with respect to concurrent callers (row
// lock, conditional update, transaction, or single-writer script): under
// concurrent commits against the same entity, at most one caller observes
// a given version and succeeds from it.
type Store interface {
	// Create persists a brand-new snapshot. Returns domain.ErrEntityExists
	// if the ID is already taken.
	Create(ctx context.Context, snapshot *domain.Snapshot) error

	// Load retrieves the current snapshot for an entity. Returns
	// domain.ErrEntityNotFound if the ID does not resolve. The returned
	// snapshot is an isolated copy; mutating it does not affect the store.
	Load(ctx context.Context, entityID string) (*domain.Snapshot, error)

	// CommitIfVersionMatches atomically applies a committed transition: if
	// the stored version equals expectedVersion it sets the new state,
	// increments the version by exactly 1, appends the entry to the
	// bounded log (stamping its sequence), and returns the updated
	// snapshot. On a version mismatch it returns a
	// *domain.VersionConflictError carrying the actual stored version and
	// mutates nothing. Returns domain.ErrEntityNotFound for unknown IDs.
	CommitIfVersionMatches(ctx context.Context, entityID string, expectedVersion int64, newState string, entry domain.LogEntry) (*domain.Snapshot, error)

	// AppendRejection appends a log entry recording a refused transition
	// attempt. State and version are left untouched; sequence issuance
	// stays monotonic with committed entries.
	AppendRejection(ctx context.Context, entityID string, entry domain.LogEntry) error

	// Delete removes the entity. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, entityID string) error

	// List returns the IDs of all stored entities.
	List(ctx context.Context) ([]string, error)
}
