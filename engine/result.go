package engine

// Result is the closed set of outcomes a step's Executor can produce.
// The six concrete types below are the only implementations; isResult
// is unexported so no other package can add a seventh variant, and the
// router's switch returns ErrUnhandledResultVariant as a routing failure
// if it ever sees a concrete type it doesn't recognize.
type Result interface {
	isResult()
}

// ContinueResult passes Value to the router for default successor
// selection.
type ContinueResult struct {
	Value any
}

func (ContinueResult) isResult() {}

// Continue builds a ContinueResult.
func Continue(value any) Result {
	return ContinueResult{Value: value}
}

// BranchResult routes by the runtime type of Event. Event must be
// non-nil.
type BranchResult struct {
	Event any
}

func (BranchResult) isResult() {}

// Branch builds a BranchResult. Panics if event is nil — branch events
// are structural routing keys and a nil event can never match a
// declared next-class.
func Branch(event any) Result {
	if event == nil {
		panic("engine: Branch requires a non-nil event")
	}
	return BranchResult{Event: event}
}

// FinishResult is terminal success for the run, carrying the run's
// final value.
type FinishResult struct {
	Value any
}

func (FinishResult) isResult() {}

// Finish builds a FinishResult.
func Finish(value any) Result {
	return FinishResult{Value: value}
}

// FailResult carries a non-nil error, subject to the step's retry
// policy.
type FailResult struct {
	Err error
}

func (FailResult) isResult() {}

// Fail builds a FailResult. Panics if err is nil.
func Fail(err error) Result {
	if err == nil {
		panic("engine: Fail requires a non-nil error")
	}
	return FailResult{Err: err}
}

// SuspendResult pauses the run until a matching Resume call supplies a
// value of ExpectedInputType.
type SuspendResult struct {
	Prompt            any
	ExpectedInputType any
	Metadata          map[string]any
}

func (SuspendResult) isResult() {}

// Suspend builds a SuspendResult. expectedType must be non-nil; it is
// typically a reflect.Type or a zero value of the expected Go type,
// whichever the engine's configured SchemaProvider understands.
// metadata defaults to an empty map when nil.
func Suspend(prompt any, expectedType any, metadata map[string]any) Result {
	if expectedType == nil {
		panic("engine: Suspend requires a non-nil expectedType")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return SuspendResult{Prompt: prompt, ExpectedInputType: expectedType, Metadata: metadata}
}

// AsyncResult schedules a deferred handler keyed by TaskID; the run
// goes SUSPENDED until the handler produces a follow-up Result.
type AsyncResult struct {
	TaskID         string
	EstimatedMs    int64
	TaskArgs       map[string]any
	ImmediateValue any
}

func (AsyncResult) isResult() {}

// Async builds an AsyncResult. taskID must be non-blank. estimatedMs
// may be -1 to mean "unknown". taskArgs defaults to an empty map when
// nil.
func Async(taskID string, estimatedMs int64, taskArgs map[string]any, immediateValue any) Result {
	if taskID == "" {
		panic("engine: Async requires a non-blank taskID")
	}
	if taskArgs == nil {
		taskArgs = map[string]any{}
	}
	return AsyncResult{
		TaskID:         taskID,
		EstimatedMs:    estimatedMs,
		TaskArgs:       taskArgs,
		ImmediateValue: immediateValue,
	}
}
