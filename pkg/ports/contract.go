package ports

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gatewright/passage/pkg/domain"
)

// RunStoreContract is a reusable test suite that verifies a Store adapter
// honors the port semantics, including the atomicity of the
// compare-and-swap commit. Every adapter test should call it.
func RunStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	entry := func(event, from, to string, outcome domain.Outcome) domain.LogEntry {
		return domain.LogEntry{Event: event, FromState: from, ToState: to, Outcome: outcome}
	}

	t.Run("Create_Load_RoundTrip", func(t *testing.T) {
		snap := domain.NewSnapshot("contract-1", "upload", "idle", 5)
		if err := store.Create(ctx, snap); err != nil {
			t.Fatalf("unexpected error creating entity: %v", err)
		}

		loaded, err := store.Load(ctx, "contract-1")
		if err != nil {
			t.Fatalf("unexpected error loading entity: %v", err)
		}
		if loaded.State != "idle" || loaded.Version != 0 || loaded.GraphName != "upload" {
			t.Errorf("loaded snapshot mismatch: %+v", loaded)
		}
		if loaded.Log == nil || loaded.Log.Len() != 0 {
			t.Errorf("expected empty log, got %+v", loaded.Log)
		}
	})

	t.Run("Create_Duplicate", func(t *testing.T) {
		err := store.Create(ctx, domain.NewSnapshot("contract-1", "upload", "idle", 5))
		if !errors.Is(err, domain.ErrEntityExists) {
			t.Errorf("expected ErrEntityExists, got %v", err)
		}
	})

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := store.Load(ctx, "no-such-entity")
		if !errors.Is(err, domain.ErrEntityNotFound) {
			t.Errorf("expected ErrEntityNotFound, got %v", err)
		}
	})

	t.Run("Commit_Success", func(t *testing.T) {
		updated, err := store.CommitIfVersionMatches(ctx, "contract-1", 0, "uploading",
			entry("start", "idle", "uploading", domain.OutcomeCommitted))
		if err != nil {
			t.Fatalf("unexpected commit error: %v", err)
		}
		if updated.State != "uploading" || updated.Version != 1 {
			t.Errorf("commit result mismatch: state=%s version=%d", updated.State, updated.Version)
		}
		if updated.Log.Len() != 1 {
			t.Fatalf("expected 1 log entry, got %d", updated.Log.Len())
		}
		if got := updated.Log.Entries[0]; got.Sequence != 1 || got.Outcome != domain.OutcomeCommitted {
			t.Errorf("unexpected log entry: %+v", got)
		}
	})

	t.Run("Commit_IsolatedFromCallerMutation", func(t *testing.T) {
		loaded, err := store.Load(ctx, "contract-1")
		if err != nil {
			t.Fatalf("unexpected load error: %v", err)
		}
		loaded.State = "mutated"
		loaded.Log.Append(domain.LogEntry{Event: "bogus"})

		reloaded, err := store.Load(ctx, "contract-1")
		if err != nil {
			t.Fatalf("unexpected load error: %v", err)
		}
		if reloaded.State != "uploading" || reloaded.Log.Len() != 1 {
			t.Errorf("store leaked caller mutation: %+v", reloaded)
		}
	})

	t.Run("Commit_VersionConflict", func(t *testing.T) {
		_, err := store.CommitIfVersionMatches(ctx, "contract-1", 0, "processing",
			entry("success", "uploading", "processing", domain.OutcomeCommitted))

		var conflict *domain.VersionConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected VersionConflictError, got %v", err)
		}
		if conflict.Expected != 0 || conflict.Actual != 1 {
			t.Errorf("conflict payload mismatch: %+v", conflict)
		}

		// Nothing moved.
		loaded, err := store.Load(ctx, "contract-1")
		if err != nil {
			t.Fatalf("unexpected load error: %v", err)
		}
		if loaded.State != "uploading" || loaded.Version != 1 || loaded.Log.Len() != 1 {
			t.Errorf("conflicting commit mutated state: %+v", loaded)
		}
	})

	t.Run("Commit_NotFound", func(t *testing.T) {
		_, err := store.CommitIfVersionMatches(ctx, "no-such-entity", 0, "uploading",
			entry("start", "idle", "uploading", domain.OutcomeCommitted))
		if !errors.Is(err, domain.ErrEntityNotFound) {
			t.Errorf("expected ErrEntityNotFound, got %v", err)
		}
	})

	t.Run("AppendRejection", func(t *testing.T) {
		err := store.AppendRejection(ctx, "contract-1",
			entry("start", "uploading", "", domain.OutcomeRejectedIllegal))
		if err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}

		loaded, err := store.Load(ctx, "contract-1")
		if err != nil {
			t.Fatalf("unexpected load error: %v", err)
		}
		if loaded.Version != 1 {
			t.Errorf("rejection must not advance the version, got %d", loaded.Version)
		}
		if loaded.Log.Len() != 2 {
			t.Fatalf("expected 2 log entries, got %d", loaded.Log.Len())
		}
		if got := loaded.Log.Entries[1]; got.Sequence != 2 || got.Outcome != domain.OutcomeRejectedIllegal {
			t.Errorf("unexpected rejection entry: %+v", got)
		}
	})

	t.Run("AppendRejection_NotFound", func(t *testing.T) {
		err := store.AppendRejection(ctx, "no-such-entity",
			entry("start", "idle", "", domain.OutcomeRejectedIllegal))
		if !errors.Is(err, domain.ErrEntityNotFound) {
			t.Errorf("expected ErrEntityNotFound, got %v", err)
		}
	})

	t.Run("Log_EvictionAndSequences", func(t *testing.T) {
		snap := domain.NewSnapshot("contract-evict", "upload", "idle", 3)
		if err := store.Create(ctx, snap); err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}

		for i := 0; i < 4; i++ {
			if err := store.AppendRejection(ctx, "contract-evict",
				entry("start", "idle", "", domain.OutcomeRejectedGuard)); err != nil {
				t.Fatalf("unexpected append error: %v", err)
			}
		}

		loaded, err := store.Load(ctx, "contract-evict")
		if err != nil {
			t.Fatalf("unexpected load error: %v", err)
		}
		if loaded.Log.Len() != 3 {
			t.Fatalf("expected cap of 3 entries, got %d", loaded.Log.Len())
		}
		for i, want := range []uint64{2, 3, 4} {
			if got := loaded.Log.Entries[i].Sequence; got != want {
				t.Errorf("entry %d: expected sequence %d, got %d", i, want, got)
			}
		}
	})

	t.Run("Commit_ConcurrentSingleWinner", func(t *testing.T) {
		snap := domain.NewSnapshot("contract-race", "upload", "idle", 10)
		if err := store.Create(ctx, snap); err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}

		const callers = 8
		var wg sync.WaitGroup
		results := make(chan error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.CommitIfVersionMatches(ctx, "contract-race", 0, "uploading",
					entry("start", "idle", "uploading", domain.OutcomeCommitted))
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var wins, conflicts int
		for err := range results {
			switch {
			case err == nil:
				wins++
			default:
				var conflict *domain.VersionConflictError
				if !errors.As(err, &conflict) {
					t.Errorf("unexpected error kind: %v", err)
					continue
				}
				conflicts++
			}
		}
		if wins != 1 {
			t.Errorf("expected exactly one winner, got %d", wins)
		}
		if conflicts != callers-1 {
			t.Errorf("expected %d conflicts, got %d", callers-1, conflicts)
		}
	})

	t.Run("Delete_And_List", func(t *testing.T) {
		if err := store.Delete(ctx, "contract-evict"); err != nil {
			t.Fatalf("unexpected delete error: %v", err)
		}
		if err := store.Delete(ctx, "contract-evict"); err != nil {
			t.Errorf("deleting a missing entity should be a no-op, got %v", err)
		}

		ids, err := store.List(ctx)
		if err != nil {
			t.Fatalf("unexpected list error: %v", err)
		}
		lookup := make(map[string]bool, len(ids))
		for _, id := range ids {
			lookup[id] = true
		}
		if !lookup["contract-1"] || !lookup["contract-race"] {
			t.Errorf("expected surviving entities in list, got %v", ids)
		}
		if lookup["contract-evict"] {
			t.Errorf("deleted entity still listed: %v", ids)
		}
	})
}
