package emit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkit-go/workflow-engine/engine"
)

func TestListenerTranslatesRunLifecycleToEvents(t *testing.T) {
	b := NewBufferedEmitter()
	l := NewListener(b)

	l.OnRunStarted("run-1", "wf")
	l.OnStepCompleted("run-1", engine.ExecutionRecord{StepID: "a", Attempt: 1, Duration: 25 * time.Millisecond})
	l.OnRunSuspended("run-1", &engine.SuspensionRecord{SuspendingStepID: "a"})
	l.OnRunResumed("run-1")
	l.OnAsyncScheduled("run-1", engine.AsyncResult{TaskID: "task-1"})
	l.OnRunCompleted("run-1", "done")

	events := b.History("run-1")
	require.Len(t, events, 6)

	msgs := make([]string, len(events))
	for i, e := range events {
		msgs[i] = e.Msg
	}
	assert.Equal(t, []string{
		"run_started", "step_completed", "run_suspended",
		"run_resumed", "async_scheduled", "run_completed",
	}, msgs)

	assert.Equal(t, "wf", events[0].Meta["workflow_id"])
	assert.Equal(t, time.Duration(25), events[1].Meta["duration_ms"])
	assert.Equal(t, "a", events[2].Meta["step_id"])
	assert.Equal(t, "task-1", events[4].Meta["task_id"])
}

func TestListenerRunFailedCarriesErrorMessage(t *testing.T) {
	b := NewBufferedEmitter()
	l := NewListener(b)

	l.OnRunFailed("run-1", &engine.ErrorInfo{Message: "boom"})

	events := b.History("run-1")
	require.Len(t, events, 1)
	assert.Equal(t, "run_failed", events[0].Msg)
	assert.Equal(t, "boom", events[0].Meta["error"])
}

func TestListenerRunFailedNilErrorInfo(t *testing.T) {
	b := NewBufferedEmitter()
	l := NewListener(b)

	l.OnRunFailed("run-1", nil)

	events := b.History("run-1")
	require.Len(t, events, 1)
	assert.NotContains(t, events[0].Meta, "error")
}
