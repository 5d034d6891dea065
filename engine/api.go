package engine

import (
	"context"
	"sync"

	"github.com/driftkit-go/workflow-engine/engine/schema"
)

// Engine is the public entry point: a registry of Workflows plus the
// Executor that runs them. A single Engine holds many
// independently-versioned Workflows sharing one executor, store, and
// metrics collector.
type Engine struct {
	mu        sync.RWMutex
	workflows map[string]map[string]*Workflow // workflowID -> version -> Workflow
	latest    map[string]string               // workflowID -> latest registered version

	executor    *Executor
	suspensions *SuspensionManager
	async       *AsyncCoordinator
	metrics     *Metrics
}

// EngineOption configures New.
type EngineOption func(*engineConfig)

type engineConfig struct {
	store         InstanceStore
	metrics       *Metrics
	provider      schema.Provider
	maxAsync      int
	maxSteps      int
	maxConcurrent int
}

// WithInstanceStore sets the persistence backend. Defaults to an
// unexported in-memory store if omitted (see defaultMemStore).
func WithInstanceStore(s InstanceStore) EngineOption {
	return func(c *engineConfig) { c.store = s }
}

// WithMetrics attaches a Prometheus collector.
func WithMetrics(m *Metrics) EngineOption {
	return func(c *engineConfig) { c.metrics = m }
}

// WithSchemaProvider attaches the provider used to validate Resume
// values against a suspension's ExpectedInputType.
func WithSchemaProvider(p schema.Provider) EngineOption {
	return func(c *engineConfig) { c.provider = p }
}

// WithMaxAsyncWorkers bounds concurrent async handler execution
// (default 8).
func WithMaxAsyncWorkers(n int) EngineOption {
	return func(c *engineConfig) { c.maxAsync = n }
}

// WithMaxSteps bounds a single run's step loop (default 100000).
func WithMaxSteps(n int) EngineOption {
	return func(c *engineConfig) { c.maxSteps = n }
}

// WithMaxConcurrentRuns bounds how many runs may have a step executing
// at once across the Engine (default unbounded).
func WithMaxConcurrentRuns(n int) EngineOption {
	return func(c *engineConfig) { c.maxConcurrent = n }
}

// New constructs an Engine. A store must be supplied via
// WithInstanceStore, or callers get an in-process-only default (data
// lost at process exit) — fine for tests and the CLI's ad hoc mode,
// wrong for anything that must survive a restart.
func New(opts ...EngineOption) *Engine {
	cfg := &engineConfig{maxAsync: 8}
	for _, opt := range opts {
		opt(cfg)
	}

	var store InstanceStore
	if cfg.store != nil {
		store = cfg.store
	} else {
		store = newDefaultMemStore()
	}

	suspensions := NewSuspensionManager(cfg.provider)
	async := NewAsyncCoordinator(cfg.maxAsync, cfg.metrics)
	executor := NewExecutor(store, async, suspensions, cfg.metrics)
	if cfg.maxSteps > 0 {
		executor.SetMaxSteps(cfg.maxSteps)
	}
	if cfg.maxConcurrent > 0 {
		executor.SetScheduler(NewScheduler(cfg.maxConcurrent))
	}

	return &Engine{
		workflows:   make(map[string]map[string]*Workflow),
		latest:      make(map[string]string),
		executor:    executor,
		suspensions: suspensions,
		async:       async,
		metrics:     cfg.metrics,
	}
}

// Register validates and freezes wf, making it available to Execute
// and Resume under its (ID, Version) pair.
func (e *Engine) Register(wf *Workflow) error {
	if err := wf.validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	versions, ok := e.workflows[wf.ID]
	if !ok {
		versions = make(map[string]*Workflow)
		e.workflows[wf.ID] = versions
	}
	versions[wf.Version] = wf
	e.latest[wf.ID] = wf.Version
	return nil
}

// Workflow returns the registered workflow for (id, version). An empty
// version resolves to the most recently registered version of id.
func (e *Engine) Workflow(id, version string) (*Workflow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	versions, ok := e.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	if version == "" {
		version = e.latest[id]
	}
	wf, ok := versions[version]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return wf, nil
}

// Execute starts a new run of (workflowID, version) — version "" means
// "latest registered" — with triggerData as the initial step's input.
func (e *Engine) Execute(ctx context.Context, workflowID, version string, triggerData any) (*Instance, error) {
	wf, err := e.Workflow(workflowID, version)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(ctx, wf, triggerData)
}

// Resume supplies value to runID's pending suspension.
func (e *Engine) Resume(ctx context.Context, runID string, value any) (*Instance, error) {
	inst, err := e.executor.GetInstance(ctx, runID)
	if err != nil {
		return nil, err
	}
	wf, err := e.Workflow(inst.WorkflowID, inst.Version)
	if err != nil {
		return nil, err
	}
	return e.executor.Resume(ctx, wf, runID, value)
}

// CancelAsyncOperation cancels runID's outstanding async task taskID.
func (e *Engine) CancelAsyncOperation(runID, taskID string) bool {
	return e.executor.CancelAsyncOperation(runID, taskID)
}

// CancelRun transitions runID directly to CANCELLED.
func (e *Engine) CancelRun(ctx context.Context, runID string) error {
	return e.executor.CancelRun(ctx, runID)
}

// GetWorkflowInstance returns runID's current persisted snapshot.
func (e *Engine) GetWorkflowInstance(ctx context.Context, runID string) (*Instance, error) {
	return e.executor.GetInstance(ctx, runID)
}

// CurrentResultKind distinguishes what GetCurrentResult observed. The
// call reports the run's last durable state without blocking on or
// racing an in-flight step, by reading straight from the store rather
// than reaching into the live *Instance a concurrent runLoop might be
// mutating.
type CurrentResultKind int

const (
	CurrentResultRunning CurrentResultKind = iota
	CurrentResultSuspended
	CurrentResultAsyncRunning
	CurrentResultCompleted
	CurrentResultFailed
	CurrentResultCancelled
)

// CurrentResult is GetCurrentResult's snapshot return value.
type CurrentResult struct {
	Kind    CurrentResultKind
	Value   any        // set when Kind == Completed
	Prompt  any        // set when Kind == Suspended
	Error   *ErrorInfo // set when Kind == Failed
	StepID  string     // the step current at snapshot time

	// TaskID, Percent, Message, and Done report an outstanding async
	// handler's progress when Kind == AsyncRunning: percent/message are
	// the task's last reported values (0/"" if the handler hasn't
	// reported yet), and Done is true only in the narrow window between
	// the handler finishing and the executor resuming routing.
	TaskID  string
	Percent int
	Message string
	Done    bool
}

// GetCurrentResult returns a point-in-time read of runID's status
// without consuming a pending suspension or blocking on in-flight
// work.
func (e *Engine) GetCurrentResult(ctx context.Context, runID string) (*CurrentResult, error) {
	inst, err := e.executor.GetInstance(ctx, runID)
	if err != nil {
		return nil, err
	}

	cr := &CurrentResult{StepID: inst.CurrentStepID}
	switch inst.Status {
	case StatusCompleted:
		cr.Kind = CurrentResultCompleted
		if len(inst.History) > 0 {
			cr.Value = nextStepInput(inst.History[len(inst.History)-1].Result)
		}
	case StatusFailed:
		cr.Kind = CurrentResultFailed
		cr.Error = inst.Error
	case StatusCancelled:
		cr.Kind = CurrentResultCancelled
	case StatusSuspended:
		if rec, ok := e.suspensions.Peek(runID); ok {
			cr.Kind = CurrentResultSuspended
			cr.Prompt = rec.Prompt
		} else if inst.Suspension != nil {
			cr.Kind = CurrentResultSuspended
			cr.Prompt = inst.Suspension.Prompt
		} else if tasks := e.async.TasksForRun(runID); len(tasks) > 0 {
			task := tasks[0]
			cr.Kind = CurrentResultAsyncRunning
			cr.TaskID = task.TaskID
			cr.Percent, cr.Message, cr.Done = task.Progress()
		} else {
			cr.Kind = CurrentResultSuspended
		}
	default:
		cr.Kind = CurrentResultRunning
	}
	return cr, nil
}

// AddInterceptor registers i on the underlying Executor.
func (e *Engine) AddInterceptor(i Interceptor) { e.executor.AddInterceptor(i) }

// AddListener registers l on the underlying Executor.
func (e *Engine) AddListener(l ExecutionListener) { e.executor.AddListener(l) }

// RemoveListener deregisters l.
func (e *Engine) RemoveListener(l ExecutionListener) { e.executor.RemoveListener(l) }

// Shutdown returns nil and does nothing else: it does not stop new
// Execute/Resume calls, wait for in-flight steps, cancel async
// handlers, or change the status of running instances. The executor
// holds no long-lived goroutines outside of in-flight async handlers,
// which AsyncCoordinator.Cancel winds down one task at a time.
func (e *Engine) Shutdown(ctx context.Context) error {
	return nil
}
