package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	BaseListener
	started   []string
	completed []string
	failed    []string
}

// BaseListener supplies no-op ExecutionListener methods so tests only
// override the hooks they assert on.
type BaseListener struct{}

func (BaseListener) OnRunStarted(string, string)              {}
func (BaseListener) OnStepCompleted(string, ExecutionRecord)   {}
func (BaseListener) OnRunSuspended(string, *SuspensionRecord)  {}
func (BaseListener) OnRunResumed(string)                       {}
func (BaseListener) OnAsyncScheduled(string, AsyncResult)      {}
func (BaseListener) OnRunCompleted(string, any)                {}
func (BaseListener) OnRunFailed(string, *ErrorInfo)            {}

func (l *recordingListener) OnRunStarted(runID, workflowID string) {
	l.started = append(l.started, runID)
}
func (l *recordingListener) OnRunCompleted(runID string, _ any) {
	l.completed = append(l.completed, runID)
}
func (l *recordingListener) OnRunFailed(runID string, _ *ErrorInfo) {
	l.failed = append(l.failed, runID)
}

type blockingInterceptor struct {
	BaseInterceptor
	blockStep string
	err       error
}

func (b *blockingInterceptor) BeforeStep(_ context.Context, _, _ string, step *Step, _ any) (Result, error) {
	if step.ID == b.blockStep {
		return nil, b.err
	}
	return nil, nil
}

func TestListenerObservesRunStartedAndCompleted(t *testing.T) {
	eng := newTestEngine()
	wf := linearWorkflow(t)
	require.NoError(t, eng.Register(wf))

	listener := &recordingListener{}
	eng.AddListener(listener)

	inst, err := eng.Execute(context.Background(), "linear", "v1", "x")
	require.NoError(t, err)

	assert.Contains(t, listener.started, inst.RunID)
	assert.Contains(t, listener.completed, inst.RunID)
	assert.Empty(t, listener.failed)
}

func TestRemoveListenerStopsNotifications(t *testing.T) {
	eng := newTestEngine()
	wf := linearWorkflow(t)
	require.NoError(t, eng.Register(wf))

	listener := &recordingListener{}
	eng.AddListener(listener)
	eng.RemoveListener(listener)

	_, err := eng.Execute(context.Background(), "linear", "v1", "x")
	require.NoError(t, err)
	assert.Empty(t, listener.started)
}

func TestInterceptorBeforeStepErrorFailsRun(t *testing.T) {
	eng := newTestEngine()
	wf := linearWorkflow(t)
	require.NoError(t, eng.Register(wf))

	boom := errors.New("blocked by policy")
	eng.AddInterceptor(&blockingInterceptor{blockStep: "start", err: boom})

	listener := &recordingListener{}
	eng.AddListener(listener)

	inst, err := eng.Execute(context.Background(), "linear", "v1", "x")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, inst.Status)
	assert.Contains(t, listener.failed, inst.RunID)
}

func TestInterceptorChainAddIsCopyOnWrite(t *testing.T) {
	c := newInterceptorChain()
	c2 := c.addInterceptor(BaseInterceptor{})
	assert.Len(t, c.interceptors, 0)
	assert.Len(t, c2.interceptors, 1)
}
