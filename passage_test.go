package passage_test

import (
	"context"
	"testing"

	"github.com/gatewright/passage"
	"github.com/gatewright/passage/pkg/adapters/memory"
	"github.com/gatewright/passage/pkg/domain"
	"github.com/gatewright/passage/pkg/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadGraph(t *testing.T) *domain.Graph {
	t.Helper()
	g, err := domain.NewGraph(domain.GraphSpec{
		Name:    "upload",
		States:  []string{"idle", "uploading", "processing", "done"},
		Initial: "idle",
		Transitions: []domain.TransitionSpec{
			{Name: "start", From: []string{"idle"}, To: "uploading"},
			{Name: "success", From: []string{"uploading"}, To: "processing"},
			{Name: "fail_temp", From: []string{"uploading"}, To: "idle"},
			{Name: "success_process", From: []string{"processing"}, To: "done"},
		},
	})
	require.NoError(t, err)
	return g
}

func TestNew_Validation(t *testing.T) {
	g := uploadGraph(t)

	_, err := passage.New(nil, passage.WithGraph(g))
	assert.ErrorIs(t, err, passage.ErrStoreRequired)

	_, err = passage.New(memory.NewStore())
	assert.ErrorIs(t, err, passage.ErrNoGraphs)

	_, err = passage.New(memory.NewStore(), passage.WithGraph(g), passage.WithGraph(uploadGraph(t)))
	assert.ErrorIs(t, err, passage.ErrDuplicateGraph)
}

func TestEngine_EndToEnd(t *testing.T) {
	guards := guard.NewRegistry()
	guards.Register("upload", "success_process", "optimized", func(ctx context.Context, in guard.Input) error {
		if done, _ := in.Context["optimization_complete"].(bool); !done {
			return &domain.GuardError{Reason: "optimization not complete"}
		}
		return nil
	})

	engine, err := passage.New(memory.NewStore(),
		passage.WithGraph(uploadGraph(t)),
		passage.WithGuards(guards),
	)
	require.NoError(t, err)

	ctx := context.Background()
	snap, err := engine.CreateEntity(ctx, "upload")
	require.NoError(t, err)
	assert.Equal(t, "idle", snap.State)
	assert.Equal(t, int64(0), snap.Version)

	res, err := engine.ApplyTransition(ctx, snap.ID, "start", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "uploading", res.To)
	assert.Equal(t, int64(1), res.NewVersion)

	res, err = engine.ApplyTransition(ctx, snap.ID, "success", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "processing", res.To)
	assert.Equal(t, int64(2), res.NewVersion)

	// Guarded edge refuses until the flag is set.
	_, err = engine.ApplyTransition(ctx, snap.ID, "success_process", 2, nil)
	var gerr *domain.GuardError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "optimization not complete", gerr.Reason)

	res, err = engine.ApplyTransition(ctx, snap.ID, "success_process", 2,
		map[string]any{"optimization_complete": true})
	require.NoError(t, err)
	assert.Equal(t, "done", res.To)
	assert.Equal(t, int64(3), res.NewVersion)

	loaded, allowed, err := engine.GetEntity(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", loaded.State)
	assert.Empty(t, allowed)
	// Three commits plus one guard rejection in the audit trail.
	assert.Equal(t, 4, loaded.Log.Len())
}

func TestEngine_GraphIntrospection(t *testing.T) {
	engine, err := passage.New(memory.NewStore(), passage.WithGraph(uploadGraph(t)))
	require.NoError(t, err)

	assert.Equal(t, []string{"upload"}, engine.GraphNames())

	g, ok := engine.Graph("upload")
	require.True(t, ok)
	assert.Equal(t, "idle", g.Initial())

	_, ok = engine.Graph("orders")
	assert.False(t, ok)
}
