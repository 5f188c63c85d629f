// Package file implements ports.Store on the local filesystem, one JSON
// document per entity.
//
// A single in-process mutex serializes the read-modify-write cycle, and
// writes go through a temp file plus rename so a crash never leaves a
// half-written snapshot. Suitable for single-process deployments; use the
// redis adapter when multiple replicas share a store.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gatewright/passage/pkg/domain"
)

// Store persists snapshots as JSON files under BasePath.
type Store struct {
	basePath string
	mu       sync.Mutex
}

// NewStore creates a file store rooted at basePath. If basePath is empty
// it defaults to ".passage/entities".
func NewStore(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".passage", "entities")
	}
	return &Store{basePath: basePath}
}

func (s *Store) path(entityID string) string {
	return filepath.Join(s.basePath, entityID+".json")
}

// Create persists a new snapshot.
func (s *Store) Create(ctx context.Context, snapshot *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(snapshot.ID)); err == nil {
		return domain.ErrEntityExists
	}
	return s.write(snapshot)
}

// Load retrieves a snapshot from disk.
func (s *Store) Load(ctx context.Context, entityID string) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(entityID)
}

// CommitIfVersionMatches applies the committed transition under the store
// mutex: read, version check, mutate, atomic rewrite.
func (s *Store) CommitIfVersionMatches(ctx context.Context, entityID string, expectedVersion int64, newState string, entry domain.LogEntry) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read(entityID)
	if err != nil {
		return nil, err
	}
	if snap.Version != expectedVersion {
		return nil, &domain.VersionConflictError{Expected: expectedVersion, Actual: snap.Version}
	}

	snap.State = newState
	snap.Version++
	snap.Log.Append(entry)

	if err := s.write(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// AppendRejection records a refused attempt without touching state or
// version.
func (s *Store) AppendRejection(ctx context.Context, entityID string, entry domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read(entityID)
	if err != nil {
		return err
	}
	snap.Log.Append(entry)
	return s.write(snap)
}

// Delete removes the entity file. Unknown IDs are a no-op.
func (s *Store) Delete(ctx context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(entityID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete entity file: %w", err)
	}
	return nil
}

// List returns the IDs of all stored entities.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list entity files: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (s *Store) read(entityID string) (*domain.Snapshot, error) {
	data, err := os.ReadFile(s.path(entityID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to read entity file: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity %s: %w", entityID, err)
	}
	return &snap, nil
}

func (s *Store) write(snap *domain.Snapshot) error {
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure entity directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entity %s: %w", snap.ID, err)
	}

	// Write-then-rename keeps the snapshot file whole even if the process
	// dies mid-write.
	tmp, err := os.CreateTemp(s.basePath, snap.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(snap.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace entity file: %w", err)
	}
	return nil
}
