package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gatewright/passage/pkg/adapters/file"
	"github.com/gatewright/passage/pkg/domain"
	"github.com/gatewright/passage/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	ports.RunStoreContract(t, file.NewStore(t.TempDir()))
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := file.NewStore(dir)
	require.NoError(t, store.Create(ctx, domain.NewSnapshot("e1", "upload", "idle", 5)))
	_, err := store.CommitIfVersionMatches(ctx, "e1", 0, "uploading", domain.LogEntry{
		Event: "start", FromState: "idle", ToState: "uploading", Outcome: domain.OutcomeCommitted,
	})
	require.NoError(t, err)

	// A fresh store over the same directory sees the committed snapshot.
	reopened := file.NewStore(dir)
	snap, err := reopened.Load(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "uploading", snap.State)
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, 1, snap.Log.Len())
}

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := file.NewStore(dir)
	require.NoError(t, store.Create(ctx, domain.NewSnapshot("e1", "upload", "idle", 5)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not an entity"), 0o644))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, ids)
}
