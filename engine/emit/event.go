package emit

// Event is one observability point from a run: a step invocation, a
// route decision, a suspend/resume transition, or a terminal outcome.
type Event struct {
	// RunID identifies the Instance this event belongs to.
	RunID string

	// Attempt is the step invocation's attempt number (1-indexed), or
	// zero for run-level events (started, completed, failed).
	Attempt int

	// StepID names the step that produced this event. Empty for
	// run-level events.
	StepID string

	// Msg is a short, stable event name. Listener emits "run_started",
	// "step_completed", "run_suspended", "run_resumed",
	// "async_scheduled", "run_completed", and "run_failed".
	Msg string

	// Meta carries event-specific structured data. Common keys:
	// "duration_ms", "error", "kind" (retry classification),
	// "attempt", "task_id" (async).
	Meta map[string]any
}
