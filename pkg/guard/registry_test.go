package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/gatewright/passage/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pass(ctx context.Context, in Input) error { return nil }

func fail(reason string) Func {
	return func(ctx context.Context, in Input) error {
		return errors.New(reason)
	}
}

func TestRegistry_AllPass(t *testing.T) {
	reg := NewRegistry()
	reg.Register("upload", "start", "quota", pass)
	reg.Register("upload", "start", "file_type", pass)

	err := reg.Evaluate(context.Background(), Input{Graph: "upload", Event: "start", From: "idle", To: "uploading"})
	assert.NoError(t, err)
}

func TestRegistry_ShortCircuitsOnFirstFailure(t *testing.T) {
	reg := NewRegistry()
	var thirdRan bool
	reg.Register("upload", "start", "first", pass)
	reg.Register("upload", "start", "second", fail("quota exceeded"))
	reg.Register("upload", "start", "third", func(ctx context.Context, in Input) error {
		thirdRan = true
		return nil
	})

	err := reg.Evaluate(context.Background(), Input{Graph: "upload", Event: "start"})

	var gerr *domain.GuardError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "second", gerr.Guard)
	assert.Equal(t, "quota exceeded", gerr.Reason)
	assert.False(t, thirdRan, "guards after the first failure must not run")
}

func TestRegistry_StatePairBinding(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterForStates("upload", "processing", "done", "optimized", fail("optimization not complete"))

	// Bound pair matches: guard fires regardless of the event name.
	err := reg.Evaluate(context.Background(), Input{
		Graph: "upload", Event: "success_process", From: "processing", To: "done",
	})
	var gerr *domain.GuardError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "optimization not complete", gerr.Reason)

	// Different pair: no guard applies.
	err = reg.Evaluate(context.Background(), Input{
		Graph: "upload", Event: "start", From: "idle", To: "uploading",
	})
	assert.NoError(t, err)
}

func TestRegistry_EventGuardsRunBeforeStateGuards(t *testing.T) {
	reg := NewRegistry()
	var order []string
	record := func(name string) Func {
		return func(ctx context.Context, in Input) error {
			order = append(order, name)
			return nil
		}
	}
	reg.RegisterForStates("upload", "idle", "uploading", "pair", record("pair"))
	reg.Register("upload", "start", "event", record("event"))

	err := reg.Evaluate(context.Background(), Input{Graph: "upload", Event: "start", From: "idle", To: "uploading"})
	require.NoError(t, err)
	assert.Equal(t, []string{"event", "pair"}, order)
}

func TestRegistry_GuardErrorPassthrough(t *testing.T) {
	reg := NewRegistry()
	reg.Register("upload", "start", "custom", func(ctx context.Context, in Input) error {
		return &domain.GuardError{Reason: "not today"}
	})

	err := reg.Evaluate(context.Background(), Input{Graph: "upload", Event: "start"})

	var gerr *domain.GuardError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "custom", gerr.Guard, "registry fills in the guard name")
	assert.Equal(t, "not today", gerr.Reason)
}

func TestRegistry_ContextFlows(t *testing.T) {
	reg := NewRegistry()
	reg.Register("upload", "start", "file_type", func(ctx context.Context, in Input) error {
		if ok, _ := in.Context["file_type_ok"].(bool); !ok {
			return errors.New("file type not acceptable")
		}
		return nil
	})

	in := Input{Graph: "upload", Event: "start", Context: map[string]any{"file_type_ok": true}}
	assert.NoError(t, reg.Evaluate(context.Background(), in))

	in.Context["file_type_ok"] = false
	assert.Error(t, reg.Evaluate(context.Background(), in))
}
