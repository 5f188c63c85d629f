package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/gatewright/passage/pkg/adapters/memory"
	"github.com/gatewright/passage/pkg/callback"
	"github.com/gatewright/passage/pkg/domain"
	"github.com/gatewright/passage/pkg/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// racingStore lets a competing commit land between the engine's load and
// its compare-and-swap, forcing the late conflict path in step 6.
type racingStore struct {
	*memory.Store
	once    sync.Once
	compete func()
}

func (s *racingStore) CommitIfVersionMatches(ctx context.Context, entityID string, expectedVersion int64, newState string, entry domain.LogEntry) (*domain.Snapshot, error) {
	s.once.Do(s.compete)
	return s.Store.CommitIfVersionMatches(ctx, entityID, expectedVersion, newState, entry)
}

func TestApply_ConflictAtCommitTime(t *testing.T) {
	inner := memory.NewStore()
	store := &racingStore{Store: inner}

	engine := NewEngine(store,
		map[string]*domain.Graph{"upload": uploadGraph(t)},
		guard.NewRegistry(), callback.NewRegistry(),
	)

	ctx := context.Background()
	snap, err := engine.Create(ctx, "upload")
	require.NoError(t, err)

	// The competing caller wins version 0 while our request is in flight
	// between guard evaluation and the commit.
	store.compete = func() {
		_, err := inner.CommitIfVersionMatches(ctx, snap.ID, 0, "uploading", domain.LogEntry{
			Event: "start", FromState: "idle", ToState: "uploading", Outcome: domain.OutcomeCommitted,
		})
		require.NoError(t, err)
	}

	_, err = engine.Apply(ctx, snap.ID, "start", 0, nil)

	var conflict *domain.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(0), conflict.Expected)
	assert.Equal(t, int64(1), conflict.Actual)

	// The loser's attempt is still audited.
	loaded, err := inner.Load(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Log.Len())
	assert.Equal(t, domain.OutcomeRejectedVersionConflict, loaded.Log.Entries[1].Outcome)
	assert.Equal(t, int64(1), loaded.Version)
}
