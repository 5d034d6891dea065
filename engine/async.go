package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// AsyncTaskRecord is keyed by (run ID, task ID): handler step, task
// args, immediate value, current progress, and final result when
// produced.
type AsyncTaskRecord struct {
	RunID          string
	TaskID         string
	HandlerStepID  string
	TaskArgs       map[string]any
	ImmediateValue any

	mu          sync.Mutex
	progress    int
	message     string
	cancelled   bool
	done        bool
	finalResult Result

	// pendingSuspend is not set by the engine: a Suspend the handler
	// itself returns becomes the run's SuspensionRecord, keyed to the
	// *original* step that scheduled the task (see Executor.onAsyncDone).
	pendingSuspend *SuspendResult

	startedAt time.Time
}

// Progress returns the task's current percent-complete and message.
func (t *AsyncTaskRecord) Progress() (percent int, message string, done bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress, t.message, t.done
}

// IsCancelled reports whether CancelAsyncOperation has been called for
// this task's run.
func (t *AsyncTaskRecord) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// ProgressReporter is passed to async handlers so they can report
// progress and observe cancellation without reaching into engine
// internals.
type ProgressReporter interface {
	UpdateProgress(percent int, message string)
	IsCancelled() bool
}

type taskProgressReporter struct {
	task *AsyncTaskRecord
}

func (r *taskProgressReporter) UpdateProgress(percent int, message string) {
	r.task.mu.Lock()
	if percent > r.task.progress {
		r.task.progress = percent
	}
	r.task.message = message
	r.task.mu.Unlock()
}

func (r *taskProgressReporter) IsCancelled() bool {
	return r.task.IsCancelled()
}

// AsyncCoordinator runs deferred handlers and reports progress using a
// bounded worker pool: a buffered channel semaphore caps concurrent
// handler goroutines, each with its own context.WithCancel for
// cooperative cancellation. Handlers are keyed by run ID and serialized
// per run via the executor's own run mutex — a second Async from the
// same run waits for the first handler to finish before starting.
type AsyncCoordinator struct {
	mu       sync.Mutex
	tasks    map[string]*AsyncTaskRecord // key: runID+"/"+taskID
	cancels  map[string]context.CancelFunc
	sem      chan struct{}
	timeoutX float64 // warning multiplier, default 3x
	metrics  *Metrics
}

// NewAsyncCoordinator creates a coordinator with maxWorkers concurrent
// handler slots. metrics may be nil.
func NewAsyncCoordinator(maxWorkers int, metrics *Metrics) *AsyncCoordinator {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &AsyncCoordinator{
		tasks:    make(map[string]*AsyncTaskRecord),
		cancels:  make(map[string]context.CancelFunc),
		sem:      make(chan struct{}, maxWorkers),
		timeoutX: 3,
		metrics:  metrics,
	}
}

func taskKey(runID, taskID string) string { return runID + "/" + taskID }

// resolveHandler finds the async-handler step whose ID glob-matches
// taskID (glob-style patterns permitted, e.g. "search-*").
func resolveHandler(wf *Workflow, taskID string) *Step {
	for _, id := range wf.StepIDs() {
		step := wf.Step(id)
		if !step.IsAsyncHandler {
			continue
		}
		if step.ID == taskID {
			return step
		}
		if ok, _ := doublestar.Match(step.ID, taskID); ok {
			return step
		}
	}
	return nil
}

// Schedule records the task and submits the handler to the worker
// pool, returning immediately; handlerDone is invoked (off the calling
// goroutine) once the handler produces a Result.
func (c *AsyncCoordinator) Schedule(
	ctx context.Context,
	wf *Workflow,
	runID string,
	async AsyncResult,
	handlerInput func(task *AsyncTaskRecord) any,
	handlerDone func(result Result),
) error {
	handler := resolveHandler(wf, async.TaskID)
	if handler == nil {
		return &EngineError{
			Message: "no async handler matches task " + async.TaskID,
			Code:    CodeNoAsyncHandler,
		}
	}

	task := &AsyncTaskRecord{
		RunID:          runID,
		TaskID:         async.TaskID,
		HandlerStepID:  handler.ID,
		TaskArgs:       async.TaskArgs,
		ImmediateValue: async.ImmediateValue,
		startedAt:      time.Now(),
	}

	key := taskKey(runID, async.TaskID)
	c.mu.Lock()
	c.tasks[key] = task
	handlerCtx, cancel := context.WithCancel(ctx)
	c.cancels[key] = cancel
	c.mu.Unlock()

	go func() {
		c.sem <- struct{}{}
		defer func() { <-c.sem }()
		defer cancel()

		if c.metrics != nil {
			c.metrics.AsyncStarted()
		}

		reporter := &taskProgressReporter{task: task}
		input := handlerInput(task)
		result := handler.Executor.Execute(context.WithValue(handlerCtx, progressReporterKey{}, reporter), input)

		task.mu.Lock()
		task.done = true
		task.finalResult = result
		if _, ok := result.(FinishResult); ok {
			task.progress = 100
		}
		task.mu.Unlock()

		if c.metrics != nil {
			c.metrics.AsyncFinished(handler.ID, time.Since(task.startedAt))
		}

		handlerDone(result)
	}()

	return nil
}

// progressReporterKey is the context key an async handler uses to
// retrieve its ProgressReporter via ProgressReporterFromContext.
type progressReporterKey struct{}

// ProgressReporterFromContext retrieves the ProgressReporter an async
// handler was invoked with, or nil outside an async invocation.
func ProgressReporterFromContext(ctx context.Context) ProgressReporter {
	r, _ := ctx.Value(progressReporterKey{}).(ProgressReporter)
	return r
}

// Cancel sets the cancel flag for runID's task taskID and cancels its
// context: the handler's next IsCancelled() call observes true.
func (c *AsyncCoordinator) Cancel(runID, taskID string) bool {
	key := taskKey(runID, taskID)
	c.mu.Lock()
	task, ok := c.tasks[key]
	cancel := c.cancels[key]
	c.mu.Unlock()
	if !ok {
		return false
	}
	task.mu.Lock()
	task.cancelled = true
	task.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

// Task returns runID's task record for taskID, if tracked.
func (c *AsyncCoordinator) Task(runID, taskID string) (*AsyncTaskRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[taskKey(runID, taskID)]
	return t, ok
}

// TasksForRun returns every task record currently tracked for runID,
// letting a status poll find an async-suspended run's progress without
// already knowing its task ID.
func (c *AsyncCoordinator) TasksForRun(runID string) []*AsyncTaskRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := runID + "/"
	var out []*AsyncTaskRecord
	for key, t := range c.tasks {
		if strings.HasPrefix(key, prefix) {
			out = append(out, t)
		}
	}
	return out
}

// Forget removes runID's task bookkeeping, called once the run leaves
// SUSPENDED for that task (success, failure, or cancellation).
func (c *AsyncCoordinator) Forget(runID, taskID string) {
	key := taskKey(runID, taskID)
	c.mu.Lock()
	delete(c.tasks, key)
	delete(c.cancels, key)
	c.mu.Unlock()
}
