// Package emit provides pluggable observability sinks for workflow
// execution: structured logging, OpenTelemetry spans, in-memory
// buffering for tests, and a no-op default.
package emit

import "context"

// Emitter receives Events produced during Execute/Resume. Implementations
// must not block step execution for long and must not panic; a slow or
// failing backend should drop or buffer events rather than stall a run.
type Emitter interface {
	// Emit sends a single event.
	Emit(event Event)

	// EmitBatch sends events in emission order. Individual failures
	// should be swallowed; only catastrophic configuration errors are
	// returned.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until buffered events are delivered or ctx expires.
	// Safe to call more than once.
	Flush(ctx context.Context) error
}
