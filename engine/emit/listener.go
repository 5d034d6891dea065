package emit

import (
	"time"

	"github.com/driftkit-go/workflow-engine/engine"
)

// Listener adapts an Emitter to engine.ExecutionListener, translating
// run-level lifecycle callbacks into Events. Exists so any Emitter
// backend can be wired into an Engine with engine.AddListener(emit.NewListener(e))
// without engine itself depending on this package.
type Listener struct {
	emitter Emitter
}

func NewListener(emitter Emitter) *Listener {
	return &Listener{emitter: emitter}
}

func (l *Listener) OnRunStarted(runID, workflowID string) {
	l.emitter.Emit(Event{RunID: runID, Msg: "run_started", Meta: map[string]any{"workflow_id": workflowID}})
}

func (l *Listener) OnStepCompleted(runID string, rec engine.ExecutionRecord) {
	l.emitter.Emit(Event{
		RunID:   runID,
		StepID:  rec.StepID,
		Attempt: rec.Attempt,
		Msg:     "step_completed",
		Meta: map[string]any{
			"duration_ms": rec.Duration / time.Millisecond,
		},
	})
}

func (l *Listener) OnRunSuspended(runID string, rec *engine.SuspensionRecord) {
	meta := map[string]any{}
	if rec != nil {
		meta["step_id"] = rec.SuspendingStepID
	}
	l.emitter.Emit(Event{RunID: runID, Msg: "run_suspended", Meta: meta})
}

func (l *Listener) OnRunResumed(runID string) {
	l.emitter.Emit(Event{RunID: runID, Msg: "run_resumed"})
}

func (l *Listener) OnAsyncScheduled(runID string, async engine.AsyncResult) {
	l.emitter.Emit(Event{
		RunID: runID,
		Msg:   "async_scheduled",
		Meta:  map[string]any{"task_id": async.TaskID},
	})
}

func (l *Listener) OnRunCompleted(runID string, value any) {
	l.emitter.Emit(Event{RunID: runID, Msg: "run_completed"})
}

func (l *Listener) OnRunFailed(runID string, errInfo *engine.ErrorInfo) {
	meta := map[string]any{}
	if errInfo != nil {
		meta["error"] = errInfo.Message
	}
	l.emitter.Emit(Event{RunID: runID, Msg: "run_failed", Meta: meta})
}
