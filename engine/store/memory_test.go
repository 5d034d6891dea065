package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkit-go/workflow-engine/engine"
)

func TestMemStoreSaveAndLoadInstance(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	inst := &engine.Instance{
		RunID:      "run-1",
		WorkflowID: "wf",
		Status:     engine.StatusRunning,
		History:    []engine.ExecutionRecord{{StepID: "a"}},
	}
	require.NoError(t, s.SaveInstance(ctx, inst))

	loaded, err := s.LoadInstance(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "wf", loaded.WorkflowID)
	require.Len(t, loaded.History, 1)
}

func TestMemStoreSaveCopiesHistorySoLaterMutationIsIsolated(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	history := []engine.ExecutionRecord{{StepID: "a"}}
	inst := &engine.Instance{RunID: "run-1", History: history}
	require.NoError(t, s.SaveInstance(ctx, inst))

	inst.History = append(inst.History, engine.ExecutionRecord{StepID: "b"})

	loaded, err := s.LoadInstance(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, loaded.History, 1, "store's copy must not see post-save mutations")
}

func TestMemStoreLoadCopyIsolatesFutureStoreMutations(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.SaveInstance(ctx, &engine.Instance{RunID: "run-1", History: []engine.ExecutionRecord{{StepID: "a"}}}))

	loaded, err := s.LoadInstance(ctx, "run-1")
	require.NoError(t, err)
	loaded.History[0].StepID = "mutated"

	reloaded, err := s.LoadInstance(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "a", reloaded.History[0].StepID)
}

func TestMemStoreLoadMissingReturnsRunNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.LoadInstance(context.Background(), "missing")
	assert.ErrorIs(t, err, engine.ErrRunNotFound)
}

func TestMemStoreDeleteInstance(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.SaveInstance(ctx, &engine.Instance{RunID: "run-1"}))
	require.NoError(t, s.DeleteInstance(ctx, "run-1"))

	_, err := s.LoadInstance(ctx, "run-1")
	assert.ErrorIs(t, err, engine.ErrRunNotFound)
}

func TestMemStoreDeleteUnknownRunIsNoop(t *testing.T) {
	s := NewMemStore()
	assert.NoError(t, s.DeleteInstance(context.Background(), "never-existed"))
}

func TestMemStoreListInstancesFiltersByWorkflowAndStatus(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.SaveInstance(ctx, &engine.Instance{RunID: "r1", WorkflowID: "wf-a", Status: engine.StatusRunning}))
	require.NoError(t, s.SaveInstance(ctx, &engine.Instance{RunID: "r2", WorkflowID: "wf-a", Status: engine.StatusCompleted}))
	require.NoError(t, s.SaveInstance(ctx, &engine.Instance{RunID: "r3", WorkflowID: "wf-b", Status: engine.StatusRunning}))

	all, err := s.ListInstances(ctx, "", engine.StatusRunning, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	wfA, err := s.ListInstances(ctx, "wf-a", engine.StatusRunning, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "r2"}, wfA)

	running, err := s.ListInstances(ctx, "", engine.StatusRunning, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "r3"}, running)
}

func TestMemStoreIdempotencyRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, found, err := s.CheckIdempotency(ctx, "run-1", "step-a", 1)
	require.NoError(t, err)
	assert.False(t, found)

	want := engine.Finish("done")
	require.NoError(t, s.RecordIdempotency(ctx, "run-1", "step-a", 1, want))

	got, found, err := s.CheckIdempotency(ctx, "run-1", "step-a", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestMemStoreIdempotencyDistinguishesInvocationAndStep(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.RecordIdempotency(ctx, "run-1", "step-a", 1, engine.Finish("first")))

	_, found, err := s.CheckIdempotency(ctx, "run-1", "step-a", 2)
	require.NoError(t, err)
	assert.False(t, found, "different invocation must not collide")

	_, found, err = s.CheckIdempotency(ctx, "run-1", "step-b", 1)
	require.NoError(t, err)
	assert.False(t, found, "different step must not collide")
}
