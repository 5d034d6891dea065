package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Executor drives Workflow step graphs for many concurrent runs:
// resolve the current step, invoke it, evaluate routing, advance,
// repeat — dispatching across Continue/Branch/Finish/Fail/Suspend/
// Async outcomes rather than a single next-step result.
//
// A run's steps never execute concurrently with themselves: Execute,
// Resume, and an async handler's completion callback all contend for
// the same per-run *sync.Mutex, preserving a single-goroutine-per-run
// invariant while still allowing many runs to progress in parallel.
type Executor struct {
	router      *Router
	retryExec   *RetryExecutor
	async       *AsyncCoordinator
	suspensions *SuspensionManager
	store       InstanceStore
	metrics     *Metrics

	// maxSteps bounds one Execute/Resume call's step loop as a last-
	// resort guard against workflows whose cycles evade the
	// registration-time structural check, which is necessarily a
	// heuristic; this is the runtime backstop.
	maxSteps int

	chainPtr  atomic.Pointer[interceptorChain]
	runLocks  sync.Map // runID -> *sync.Mutex
	scheduler *Scheduler
}

// NewExecutor wires an Executor from its collaborators. metrics may be
// nil (metrics disabled); the retry executor's jitter source is seeded
// from the current time.
func NewExecutor(store InstanceStore, async *AsyncCoordinator, suspensions *SuspensionManager, metrics *Metrics) *Executor {
	var sink RetryMetricsSink
	if metrics != nil {
		sink = metrics
	}
	e := &Executor{
		router:      NewRouter(),
		retryExec:   NewRetryExecutor(sink, rand.New(rand.NewSource(time.Now().UnixNano()))),
		async:       async,
		suspensions: suspensions,
		store:       store,
		metrics:     metrics,
		maxSteps:    100_000,
		scheduler:   NewScheduler(0),
	}
	e.chainPtr.Store(newInterceptorChain())
	return e
}

// SetScheduler bounds how many runs may have a step executing
// concurrently across this Executor. Replaces the unbounded default
// installed by NewExecutor.
func (e *Executor) SetScheduler(s *Scheduler) {
	if s != nil {
		e.scheduler = s
	}
}

// SetMaxSteps overrides the runtime step-loop guard (default 100000).
func (e *Executor) SetMaxSteps(n int) {
	if n > 0 {
		e.maxSteps = n
	}
}

func (e *Executor) chain() *interceptorChain { return e.chainPtr.Load() }

// AddInterceptor registers i, effective for every step invoked after
// this call returns.
func (e *Executor) AddInterceptor(i Interceptor) {
	for {
		old := e.chainPtr.Load()
		if e.chainPtr.CompareAndSwap(old, old.addInterceptor(i)) {
			return
		}
	}
}

// AddListener registers l to observe run-level lifecycle events.
func (e *Executor) AddListener(l ExecutionListener) {
	for {
		old := e.chainPtr.Load()
		if e.chainPtr.CompareAndSwap(old, old.addListener(l)) {
			return
		}
	}
}

// RemoveListener deregisters l. No-op if l was never added.
func (e *Executor) RemoveListener(l ExecutionListener) {
	for {
		old := e.chainPtr.Load()
		if e.chainPtr.CompareAndSwap(old, old.removeListener(l)) {
			return
		}
	}
}

func (e *Executor) runMutex(runID string) *sync.Mutex {
	v, _ := e.runLocks.LoadOrStore(runID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Execute starts a new run of wf from its initial step with
// triggerData as input, and drives it until it finishes, suspends, or
// schedules an async task.
func (e *Executor) Execute(ctx context.Context, wf *Workflow, triggerData any) (*Instance, error) {
	if wf.InitialStepID() == "" {
		return nil, &EngineError{Message: "workflow has no initial step: " + wf.ID, Code: CodeInvalidWorkflow}
	}

	inst := &Instance{
		RunID:         uuid.NewString(),
		WorkflowID:    wf.ID,
		Version:       wf.Version,
		Status:        StatusRunning,
		CurrentStepID: wf.InitialStepID(),
		Ctx:           NewContext(triggerData),
		AsyncTasks:    make(map[string]*AsyncTaskRecord),
		Labels:        make(map[string]string),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if err := e.scheduler.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.scheduler.Release()

	mu := e.runMutex(inst.RunID)
	mu.Lock()
	defer mu.Unlock()

	e.chain().notifyRunStarted(inst.RunID, wf.ID)
	if err := e.store.SaveInstance(ctx, inst); err != nil {
		return inst, &EngineError{Message: "persist failed on run start", Code: CodePersistenceError, Cause: err}
	}

	if err := e.runLoop(ctx, wf, inst, triggerData); err != nil {
		return inst, err
	}
	return inst, nil
}

// Resume supplies value to runID's pending suspension and continues
// the run from the suspending step's successor.
func (e *Executor) Resume(ctx context.Context, wf *Workflow, runID string, value any) (*Instance, error) {
	if err := e.scheduler.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.scheduler.Release()

	mu := e.runMutex(runID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := e.store.LoadInstance(ctx, runID)
	if err != nil {
		return nil, err
	}
	if inst.Status != StatusSuspended {
		return inst, ErrNotSuspended
	}

	rec, err := e.suspensions.Resume(runID, value)
	if err != nil {
		return inst, err
	}

	step := wf.Step(rec.SuspendingStepID)
	if step == nil {
		return inst, &EngineError{Message: "unknown step: " + rec.SuspendingStepID, Code: CodeUnknownStep}
	}

	inst.Suspension = nil
	inst.Status = StatusRunning
	inst.UpdatedAt = time.Now()
	e.chain().notifyRunResumed(runID)
	if e.metrics != nil {
		e.metrics.RecordResume()
	}

	outcome := e.router.Route(step, ContinueResult{Value: value}, wf)
	if err := e.advance(ctx, wf, inst, step, outcome, value); err != nil {
		return inst, err
	}
	return inst, nil
}

// CancelAsyncOperation cancels runID's outstanding async task taskID.
// The handler observes cancellation on its next
// ProgressReporter.IsCancelled check; the run itself remains
// SUSPENDED until the handler actually returns.
func (e *Executor) CancelAsyncOperation(runID, taskID string) bool {
	return e.async.Cancel(runID, taskID)
}

// CancelRun transitions runID to CANCELLED immediately, evicting any
// pending suspension.
func (e *Executor) CancelRun(ctx context.Context, runID string) error {
	mu := e.runMutex(runID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := e.store.LoadInstance(ctx, runID)
	if err != nil {
		return err
	}
	if inst.Status.IsTerminal() {
		return nil
	}
	e.suspensions.Evict(runID)
	inst.Status = StatusCancelled
	inst.Suspension = nil
	inst.UpdatedAt = time.Now()
	if err := e.store.SaveInstance(ctx, inst); err != nil {
		return &EngineError{Message: "persist failed on cancel", Code: CodePersistenceError, Cause: err}
	}
	return nil
}

// GetInstance returns runID's current persisted snapshot.
func (e *Executor) GetInstance(ctx context.Context, runID string) (*Instance, error) {
	return e.store.LoadInstance(ctx, runID)
}

// runLoop drives wf's step graph starting at inst.CurrentStepID with
// input as the first step's argument, until the run reaches a
// terminal status or pauses (Suspend/Async). Called with inst's
// per-run mutex already held.
func (e *Executor) runLoop(ctx context.Context, wf *Workflow, inst *Instance, input any) error {
	for steps := 0; ; steps++ {
		if e.maxSteps > 0 && steps >= e.maxSteps {
			return e.fail(ctx, inst, &EngineError{
				Message: "run exceeded the executor's step budget: " + inst.RunID,
				Code:    CodeRunTimeout,
			}, inst.CurrentStepID)
		}

		step := wf.Step(inst.CurrentStepID)
		if step == nil {
			return e.fail(ctx, inst, &EngineError{
				Message: "unknown step: " + inst.CurrentStepID,
				Code:    CodeUnknownStep,
			}, inst.CurrentStepID)
		}

		chain := e.chain()
		replacement, err := chain.runBeforeStep(ctx, inst.RunID, wf.ID, step, input)
		if err != nil {
			chain.runOnStepError(ctx, inst.RunID, step, err)
			return e.fail(ctx, inst, &EngineError{Message: err.Error(), Code: CodeStepInvocationError, Cause: err}, step.ID)
		}

		var result Result
		var records []ExecutionRecord
		if replacement != nil {
			// A mock/test interceptor supplied a substitute Result: the
			// step's own Executor never runs, and retry policy does not
			// apply to a mocked outcome.
			now := time.Now()
			result = replacement
			records = []ExecutionRecord{{
				StepID:    step.ID,
				Input:     input,
				Result:    result,
				StartTime: now,
				EndTime:   now,
				Success:   isSuccess(result),
				Duration:  0,
				Attempt:   1,
			}}
		} else {
			result, records = e.retryExec.Invoke(ctx, inst.Ctx, step, input)
		}
		for _, rec := range records {
			inst.appendHistory(rec)
			chain.notifyStepCompleted(inst.RunID, rec)
			if !rec.Success {
				if fr, ok := rec.Result.(FailResult); ok {
					chain.runOnStepError(ctx, inst.RunID, step, fr.Err)
				}
			}
		}
		chain.runAfterStep(ctx, inst.RunID, step, input, result)

		outcome := e.router.Route(step, result, wf)
		stop, err := e.handleOutcome(ctx, wf, inst, step, outcome)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
		input = nextStepInput(result)
	}
}

// advance applies a single routing outcome (used by Resume, which
// re-enters the loop one step later than Execute does) and, if it
// selects a concrete successor, continues via runLoop.
func (e *Executor) advance(ctx context.Context, wf *Workflow, inst *Instance, step *Step, outcome routeOutcome, value any) error {
	stop, err := e.handleOutcome(ctx, wf, inst, step, outcome)
	if err != nil || stop {
		return err
	}
	return e.runLoop(ctx, wf, inst, value)
}

// handleOutcome applies a router decision to inst: persisting the new
// status/position and notifying listeners. Returns stop=true when the
// run loop should not continue (terminal, suspended, or scheduled
// async); the caller advances CurrentStepID itself for the
// stop=false/continue case.
func (e *Executor) handleOutcome(ctx context.Context, wf *Workflow, inst *Instance, step *Step, outcome routeOutcome) (stop bool, err error) {
	switch {
	case outcome.failErr != nil:
		return true, e.fail(ctx, inst, outcome.failErr, step.ID)
	case outcome.terminal:
		return true, e.complete(ctx, inst, outcome.finalValue)
	case outcome.suspend != nil:
		return true, e.doSuspend(ctx, inst, step.ID, outcome.suspend)
	case outcome.async != nil:
		return true, e.scheduleAsync(ctx, wf, inst, step.ID, *outcome.async)
	default:
		inst.CurrentStepID = outcome.nextStepID
		inst.UpdatedAt = time.Now()
		if err := e.store.SaveInstance(ctx, inst); err != nil {
			return true, &EngineError{Message: "persist failed after routing", Code: CodePersistenceError, Cause: err}
		}
		return false, nil
	}
}

func (e *Executor) fail(ctx context.Context, inst *Instance, cause error, stepID string) error {
	code := CodeStepInvocationError
	var ee *EngineError
	if errors.As(cause, &ee) && ee.Code != "" {
		code = ee.Code
	}
	inst.Status = StatusFailed
	inst.Error = &ErrorInfo{Code: code, Message: cause.Error(), StepID: stepID}
	inst.UpdatedAt = time.Now()
	if err := e.store.SaveInstance(ctx, inst); err != nil {
		return &EngineError{Message: "persist failed after run failure", Code: CodePersistenceError, Cause: err}
	}
	e.chain().notifyRunFailed(inst.RunID, inst.Error)
	return nil
}

func (e *Executor) complete(ctx context.Context, inst *Instance, value any) error {
	inst.Status = StatusCompleted
	inst.UpdatedAt = time.Now()
	if err := e.store.SaveInstance(ctx, inst); err != nil {
		return &EngineError{Message: "persist failed after run completion", Code: CodePersistenceError, Cause: err}
	}
	e.chain().notifyRunCompleted(inst.RunID, value)
	return nil
}

func (e *Executor) doSuspend(ctx context.Context, inst *Instance, stepID string, s *SuspendResult) error {
	rec := &SuspensionRecord{
		RunID:             inst.RunID,
		Prompt:            s.Prompt,
		ExpectedInputType: s.ExpectedInputType,
		Metadata:          s.Metadata,
		SuspendingStepID:  stepID,
	}
	e.suspensions.Suspend(rec)
	inst.Status = StatusSuspended
	inst.CurrentStepID = stepID
	inst.Suspension = rec
	inst.UpdatedAt = time.Now()
	if err := e.store.SaveInstance(ctx, inst); err != nil {
		return &EngineError{Message: "persist failed after suspend", Code: CodePersistenceError, Cause: err}
	}
	e.chain().notifyRunSuspended(inst.RunID, rec)
	if e.metrics != nil {
		e.metrics.RecordSuspension()
	}
	return nil
}

// scheduleAsync persists the SUSPENDED transition and hands the async
// task to the coordinator. The handler's eventual completion resumes
// routing via onAsyncDone, off the calling goroutine entirely.
func (e *Executor) scheduleAsync(ctx context.Context, wf *Workflow, inst *Instance, stepID string, async AsyncResult) error {
	inst.Status = StatusSuspended
	inst.CurrentStepID = stepID
	inst.UpdatedAt = time.Now()
	if err := e.store.SaveInstance(ctx, inst); err != nil {
		return &EngineError{Message: "persist failed before scheduling async task", Code: CodePersistenceError, Cause: err}
	}

	handlerInput := func(*AsyncTaskRecord) any { return async.TaskArgs }
	err := e.async.Schedule(detachedContext(ctx), wf, inst.RunID, async, handlerInput, func(result Result) {
		e.onAsyncDone(wf, inst, async.TaskID, result)
	})
	if err != nil {
		inst.Status = StatusFailed
		inst.Error = &ErrorInfo{Code: CodeNoAsyncHandler, Message: err.Error(), StepID: stepID}
		inst.UpdatedAt = time.Now()
		_ = e.store.SaveInstance(ctx, inst)
		e.chain().notifyRunFailed(inst.RunID, inst.Error)
		return err
	}

	if t, ok := e.async.Task(inst.RunID, async.TaskID); ok {
		inst.AsyncTasks[async.TaskID] = t
	}
	e.chain().notifyAsyncScheduled(inst.RunID, async)
	return nil
}

// onAsyncDone is the AsyncCoordinator's handlerDone callback: it
// claims inst's run mutex, routes the handler's Result exactly as
// runLoop would have for a synchronously-invoked step, and continues
// the loop if routing selected a concrete successor.
func (e *Executor) onAsyncDone(wf *Workflow, inst *Instance, taskID string, result Result) {
	mu := e.runMutex(inst.RunID)
	mu.Lock()
	defer mu.Unlock()
	defer e.async.Forget(inst.RunID, taskID)

	ctx := context.Background()
	handler := resolveHandler(wf, taskID)
	if handler == nil {
		return
	}

	delete(inst.AsyncTasks, taskID)
	inst.Status = StatusRunning

	rec := ExecutionRecord{
		StepID:    handler.ID,
		Result:    result,
		StartTime: time.Now(),
		EndTime:   time.Now(),
		Success:   isSuccess(result),
		Attempt:   1,
	}
	inst.appendHistory(rec)
	chain := e.chain()
	chain.notifyStepCompleted(inst.RunID, rec)
	if fr, ok := result.(FailResult); ok {
		chain.runOnStepError(ctx, inst.RunID, handler, fr.Err)
	}

	switch r := result.(type) {
	case ContinueResult:
		inst.Ctx.setStepOutput(handler.ID, r.Value)
	case BranchResult:
		inst.Ctx.setStepOutput(handler.ID, r.Event)
	}

	if s, ok := result.(SuspendResult); ok {
		// A handler's Suspend pauses the run at the step that scheduled
		// the task (still inst.CurrentStepID), so Resume continues from
		// that step's successor rather than the handler's.
		_ = e.doSuspend(ctx, inst, inst.CurrentStepID, &s)
		return
	}

	outcome := e.router.Route(handler, result, wf)
	stop, err := e.handleOutcome(ctx, wf, inst, handler, outcome)
	if err != nil || stop {
		return
	}
	_ = e.runLoop(ctx, wf, inst, nextStepInput(result))
}

// nextStepInput extracts the value a routed Result passes on as the
// next step's input.
func nextStepInput(result Result) any {
	switch r := result.(type) {
	case ContinueResult:
		return r.Value
	case BranchResult:
		return r.Event
	case FinishResult:
		return r.Value
	default:
		return nil
	}
}

// detachedContext strips ctx's cancellation/deadline while preserving
// its values, for work that must outlive the caller's request scope:
// an async handler keeps running after Execute/Resume returns.
type detached struct{ context.Context }

func (detached) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}       { return nil }
func (detached) Err() error                  { return nil }

func detachedContext(ctx context.Context) context.Context {
	return detached{ctx}
}
