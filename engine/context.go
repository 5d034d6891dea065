package engine

import "sync"

// Context is per-run state: trigger data, opaque key/value storage,
// step outputs, invocation counters, and retry contexts. Every
// accessor takes the same RWMutex lock discipline so steps and
// interceptors can read and write concurrently with the counters the
// executor maintains.
type Context struct {
	mu sync.RWMutex

	values       map[string]any
	stepOutputs  map[string]any
	invocations  map[string]int
	retryCtxs    map[string]*RetryContext
	lastStepRun  string // most recently executed step, for GetCurrentRetryContext
	triggerData  any
}

// NewContext creates an empty Context seeded with the run's trigger
// data (the initial input to Execute).
func NewContext(triggerData any) *Context {
	return &Context{
		values:      make(map[string]any),
		stepOutputs: make(map[string]any),
		invocations: make(map[string]int),
		retryCtxs:   make(map[string]*RetryContext),
		triggerData: triggerData,
	}
}

// TriggerData returns the run's initial input.
func (c *Context) TriggerData() any {
	return c.triggerData
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores value under key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// StepOutput returns the latest recorded output of stepID, if any.
func (c *Context) StepOutput(stepID string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.stepOutputs[stepID]
	return v, ok
}

// setStepOutput records stepID's latest output. Called by the executor
// after each successful step invocation.
func (c *Context) setStepOutput(stepID string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepOutputs[stepID] = value
	c.lastStepRun = stepID
}

// LastOutput scans recorded step outputs for a value accepted by
// predicate, used by branch conditions that key off runtime type
// rather than step ID. The most recently executed step's output is
// checked first; the remaining outputs are then scanned in no defined
// order, and the first one for which predicate returns true wins.
func (c *Context) LastOutput(predicate func(value any) bool) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.stepOutputs[c.lastStepRun]; ok && predicate(v) {
		return v, true
	}
	for _, v := range c.stepOutputs {
		if predicate(v) {
			return v, true
		}
	}
	return nil, false
}

// RecordStepExecution atomically increments stepID's invocation
// counter and returns the new count.
func (c *Context) RecordStepExecution(stepID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invocations[stepID]++
	return c.invocations[stepID]
}

// GetStepExecutionCount returns stepID's current invocation count
// without incrementing it.
func (c *Context) GetStepExecutionCount(stepID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.invocations[stepID]
}

// UpdateRetryContext stores ctx as stepID's current retry context.
func (c *Context) UpdateRetryContext(stepID string, ctx *RetryContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryCtxs[stepID] = ctx
	c.lastStepRun = stepID
}

// GetRetryContext returns stepID's current retry context, if any.
func (c *Context) GetRetryContext(stepID string) (*RetryContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rc, ok := c.retryCtxs[stepID]
	return rc, ok
}

// ClearRetryContext removes stepID's retry context, called on success.
func (c *Context) ClearRetryContext(stepID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.retryCtxs, stepID)
}

// GetCurrentRetryContext returns the retry context of the most
// recently executed step, if it has one.
func (c *Context) GetCurrentRetryContext() (*RetryContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rc, ok := c.retryCtxs[c.lastStepRun]
	return rc, ok
}

// snapshot returns a shallow copy of all maps for persistence (spec
// §6's "sorted map of keys -> encoded values"); the store layer is
// responsible for stable key ordering when serializing.
func (c *Context) snapshot() contextSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	values := make(map[string]any, len(c.values))
	for k, v := range c.values {
		values[k] = v
	}
	outputs := make(map[string]any, len(c.stepOutputs))
	for k, v := range c.stepOutputs {
		outputs[k] = v
	}
	counts := make(map[string]int, len(c.invocations))
	for k, v := range c.invocations {
		counts[k] = v
	}
	retries := make(map[string]*RetryContext, len(c.retryCtxs))
	for k, v := range c.retryCtxs {
		cp := *v
		retries[k] = &cp
	}

	return contextSnapshot{
		TriggerData: c.triggerData,
		Values:      values,
		StepOutputs: outputs,
		Invocations: counts,
		RetryCtxs:   retries,
		LastStepRun: c.lastStepRun,
	}
}

// contextSnapshot is the serializable form of Context used by
// instance stores.
type contextSnapshot struct {
	TriggerData any
	Values      map[string]any
	StepOutputs map[string]any
	Invocations map[string]int
	RetryCtxs   map[string]*RetryContext
	LastStepRun string
}

// restoreContext reconstructs a Context from a persisted snapshot.
func restoreContext(s contextSnapshot) *Context {
	c := &Context{
		values:      s.Values,
		stepOutputs: s.StepOutputs,
		invocations: s.Invocations,
		retryCtxs:   s.RetryCtxs,
		lastStepRun: s.LastStepRun,
		triggerData: s.TriggerData,
	}
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if c.stepOutputs == nil {
		c.stepOutputs = make(map[string]any)
	}
	if c.invocations == nil {
		c.invocations = make(map[string]int)
	}
	if c.retryCtxs == nil {
		c.retryCtxs = make(map[string]*RetryContext)
	}
	return c
}
