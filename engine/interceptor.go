package engine

import "context"

// Interceptor hooks into a step's invocation lifecycle via explicit
// before/after/error callbacks rather than a function-wrapping chain,
// since steps here are invoked through the shared RetryExecutor rather
// than by direct function composition.
type Interceptor interface {
	// BeforeStep runs immediately before a step is invoked. Returning a
	// non-nil error fails the run at once with CodeStepInvocationError:
	// the step is not invoked and its retry policy is not consulted.
	// Returning a non-nil Result instead substitutes that Result for the
	// step's real invocation entirely: the step's Executor is never
	// called, and the returned Result is routed exactly as if the step
	// had produced it. This is how a registered mock takes over a step.
	BeforeStep(ctx context.Context, runID, workflowID string, step *Step, input any) (Result, error)

	// AfterStep runs after a step produces a Result, before routing.
	AfterStep(ctx context.Context, runID string, step *Step, input any, result Result)

	// OnStepError runs whenever a step attempt ends in a FailResult,
	// including attempts that will still be retried.
	OnStepError(ctx context.Context, runID string, step *Step, err error)
}

// BaseInterceptor supplies no-op implementations so callers can embed
// it and override only the hooks they need.
type BaseInterceptor struct{}

func (BaseInterceptor) BeforeStep(ctx context.Context, runID, workflowID string, step *Step, input any) (Result, error) {
	return nil, nil
}
func (BaseInterceptor) AfterStep(ctx context.Context, runID string, step *Step, input any, result Result) {
}
func (BaseInterceptor) OnStepError(ctx context.Context, runID string, step *Step, err error) {}

// ExecutionListener observes run-level lifecycle transitions: started,
// step completed, suspended, resumed, async scheduled, completed,
// failed. Distinct from Interceptor, which can influence step
// outcomes; listeners are strictly observational and are never allowed
// to fail a run.
type ExecutionListener interface {
	OnRunStarted(runID, workflowID string)
	OnStepCompleted(runID string, rec ExecutionRecord)
	OnRunSuspended(runID string, rec *SuspensionRecord)
	OnRunResumed(runID string)
	OnAsyncScheduled(runID string, async AsyncResult)
	OnRunCompleted(runID string, value any)
	OnRunFailed(runID string, errInfo *ErrorInfo)
}

// interceptorChain holds a snapshot-on-write, lock-free-to-iterate
// list of Interceptors and ExecutionListeners: registration builds a
// copied chain and swaps it in with an atomic compare-and-swap
// (Executor.chainPtr), so iteration never blocks on a concurrent
// AddInterceptor call.
type interceptorChain struct {
	interceptors []Interceptor
	listeners    []ExecutionListener
}

func newInterceptorChain() *interceptorChain {
	return &interceptorChain{}
}

func (c *interceptorChain) addInterceptor(i Interceptor) *interceptorChain {
	next := &interceptorChain{
		interceptors: append(append([]Interceptor{}, c.interceptors...), i),
		listeners:    c.listeners,
	}
	return next
}

func (c *interceptorChain) addListener(l ExecutionListener) *interceptorChain {
	next := &interceptorChain{
		interceptors: c.interceptors,
		listeners:    append(append([]ExecutionListener{}, c.listeners...), l),
	}
	return next
}

func (c *interceptorChain) removeListener(target ExecutionListener) *interceptorChain {
	out := make([]ExecutionListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		if l != target {
			out = append(out, l)
		}
	}
	return &interceptorChain{interceptors: c.interceptors, listeners: out}
}

// runBeforeStep runs every interceptor's BeforeStep in registration
// order, stopping at the first error or first non-nil replacement
// Result — whichever comes first.
func (c *interceptorChain) runBeforeStep(ctx context.Context, runID, workflowID string, step *Step, input any) (Result, error) {
	for _, i := range c.interceptors {
		result, err := i.BeforeStep(ctx, runID, workflowID, step, input)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, nil
}

func (c *interceptorChain) runAfterStep(ctx context.Context, runID string, step *Step, input any, result Result) {
	for _, i := range c.interceptors {
		i.AfterStep(ctx, runID, step, input, result)
	}
}

func (c *interceptorChain) runOnStepError(ctx context.Context, runID string, step *Step, err error) {
	for _, i := range c.interceptors {
		i.OnStepError(ctx, runID, step, err)
	}
}

func (c *interceptorChain) notifyRunStarted(runID, workflowID string) {
	for _, l := range c.listeners {
		l.OnRunStarted(runID, workflowID)
	}
}

func (c *interceptorChain) notifyStepCompleted(runID string, rec ExecutionRecord) {
	for _, l := range c.listeners {
		l.OnStepCompleted(runID, rec)
	}
}

func (c *interceptorChain) notifyRunSuspended(runID string, rec *SuspensionRecord) {
	for _, l := range c.listeners {
		l.OnRunSuspended(runID, rec)
	}
}

func (c *interceptorChain) notifyRunResumed(runID string) {
	for _, l := range c.listeners {
		l.OnRunResumed(runID)
	}
}

func (c *interceptorChain) notifyAsyncScheduled(runID string, async AsyncResult) {
	for _, l := range c.listeners {
		l.OnAsyncScheduled(runID, async)
	}
}

func (c *interceptorChain) notifyRunCompleted(runID string, value any) {
	for _, l := range c.listeners {
		l.OnRunCompleted(runID, value)
	}
}

func (c *interceptorChain) notifyRunFailed(runID string, errInfo *ErrorInfo) {
	for _, l := range c.listeners {
		l.OnRunFailed(runID, errInfo)
	}
}
