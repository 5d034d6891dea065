package emit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedEmitterRecordsPerRunInOrder(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "run-1", Msg: "step_start"})
	b.Emit(Event{RunID: "run-1", Msg: "step_end"})
	b.Emit(Event{RunID: "run-2", Msg: "step_start"})

	run1 := b.History("run-1")
	require.Len(t, run1, 2)
	assert.Equal(t, "step_start", run1[0].Msg)
	assert.Equal(t, "step_end", run1[1].Msg)

	run2 := b.History("run-2")
	require.Len(t, run2, 1)
}

func TestBufferedEmitterEmitBatch(t *testing.T) {
	b := NewBufferedEmitter()
	err := b.EmitBatch(context.Background(), []Event{
		{RunID: "run-1", Msg: "a"},
		{RunID: "run-1", Msg: "b"},
	})
	require.NoError(t, err)
	assert.Len(t, b.History("run-1"), 2)
}

func TestBufferedEmitterHistoryReturnsCopy(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "run-1", Msg: "a"})

	got := b.History("run-1")
	got[0].Msg = "mutated"

	assert.Equal(t, "a", b.History("run-1")[0].Msg)
}

func TestBufferedEmitterClearSingleRun(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "run-1", Msg: "a"})
	b.Emit(Event{RunID: "run-2", Msg: "a"})

	b.Clear("run-1")
	assert.Empty(t, b.History("run-1"))
	assert.Len(t, b.History("run-2"), 1)
}

func TestBufferedEmitterClearAll(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "run-1", Msg: "a"})
	b.Emit(Event{RunID: "run-2", Msg: "a"})

	b.Clear("")
	assert.Empty(t, b.History("run-1"))
	assert.Empty(t, b.History("run-2"))
}

func TestBufferedEmitterFlushIsNoop(t *testing.T) {
	b := NewBufferedEmitter()
	assert.NoError(t, b.Flush(context.Background()))
}
