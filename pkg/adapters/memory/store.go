// Package memory implements ports.Store in process memory.
//
// The single mutex makes the compare-and-swap trivially atomic. Intended
// for tests and single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/gatewright/passage/pkg/domain"
)

// Store is an in-memory entity store. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	data map[string]*domain.Snapshot
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Snapshot),
	}
}

// Create persists a new snapshot.
func (s *Store) Create(ctx context.Context, snapshot *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[snapshot.ID]; exists {
		return domain.ErrEntityExists
	}
	s.data[snapshot.ID] = snapshot.Clone()
	return nil
}

// Load returns an isolated copy of the stored snapshot.
func (s *Store) Load(ctx context.Context, entityID string) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.data[entityID]
	if !ok {
		return nil, domain.ErrEntityNotFound
	}
	return snap.Clone(), nil
}

// CommitIfVersionMatches applies the committed transition atomically under
// the store mutex.
func (s *Store) CommitIfVersionMatches(ctx context.Context, entityID string, expectedVersion int64, newState string, entry domain.LogEntry) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.data[entityID]
	if !ok {
		return nil, domain.ErrEntityNotFound
	}
	if snap.Version != expectedVersion {
		return nil, &domain.VersionConflictError{Expected: expectedVersion, Actual: snap.Version}
	}

	snap.State = newState
	snap.Version++
	snap.Log.Append(entry)
	return snap.Clone(), nil
}

// AppendRejection records a refused attempt without touching state or
// version.
func (s *Store) AppendRejection(ctx context.Context, entityID string, entry domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.data[entityID]
	if !ok {
		return domain.ErrEntityNotFound
	}
	snap.Log.Append(entry)
	return nil
}

// Delete removes the entity. Unknown IDs are a no-op.
func (s *Store) Delete(ctx context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, entityID)
	return nil
}

// List returns all stored entity IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}
