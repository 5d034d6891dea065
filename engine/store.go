package engine

import "context"

// InstanceStore persists Instance snapshots across the executor's
// step-by-step loop. Implementations carry a full Instance snapshot
// per run rather than a typed state projection, since steps here carry
// heterogeneous per-step input/output types rather than one shared
// state type.
type InstanceStore interface {
	// SaveInstance persists inst's full current state, keyed by
	// inst.RunID. Implementations must make this safe to call
	// repeatedly for the same RunID (an upsert).
	SaveInstance(ctx context.Context, inst *Instance) error

	// LoadInstance returns the latest persisted snapshot for runID, or
	// ErrRunNotFound if none exists.
	LoadInstance(ctx context.Context, runID string) (*Instance, error)

	// DeleteInstance removes runID's persisted state, used by test
	// harnesses and retention sweeps; not on the executor's hot path.
	DeleteInstance(ctx context.Context, runID string) error

	// ListInstances returns run IDs matching the given workflow ID and
	// status filter. workflowID "" matches any workflow; status is only
	// applied when hasStatus is true.
	ListInstances(ctx context.Context, workflowID string, status Status, hasStatus bool) ([]string, error)

	// CheckIdempotency reports whether stepID has already completed for
	// runID at the given invocation count, so callers can skip
	// re-invocation on replay. The returned Result is the recorded one
	// where the implementation can decode it; SQLiteStore returns nil.
	CheckIdempotency(ctx context.Context, runID, stepID string, invocation int) (Result, bool, error)
}
