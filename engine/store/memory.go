// Package store provides InstanceStore implementations for the
// workflow engine: an in-memory store for tests and single-process
// deployments, and a SQLite-backed store for durable single-node
// persistence.
package store

import (
	"context"
	"strconv"
	"sync"

	"github.com/driftkit-go/workflow-engine/engine"
)

// MemStore is an in-memory engine.InstanceStore: a mutex-guarded map
// keyed by run ID, holding whole-Instance snapshots since this engine
// persists one coherent Instance per run rather than a sequence of
// state deltas.
//
// Designed for tests, CLI scratch runs, and development — state is
// lost on process exit and never shared across processes.
type MemStore struct {
	mu        sync.RWMutex
	instances map[string]*engine.Instance
	idemKeys  map[string]engine.Result
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		instances: make(map[string]*engine.Instance),
		idemKeys:  make(map[string]engine.Result),
	}
}

// SaveInstance upserts inst's snapshot, keyed by inst.RunID. Copies
// inst.History so the caller's later appends don't retroactively
// mutate the persisted copy.
func (m *MemStore) SaveInstance(_ context.Context, inst *engine.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *inst
	cp.History = append([]engine.ExecutionRecord(nil), inst.History...)
	m.instances[inst.RunID] = &cp
	return nil
}

// LoadInstance returns runID's latest snapshot.
func (m *MemStore) LoadInstance(_ context.Context, runID string) (*engine.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[runID]
	if !ok {
		return nil, engine.ErrRunNotFound
	}
	cp := *inst
	cp.History = append([]engine.ExecutionRecord(nil), inst.History...)
	return &cp, nil
}

// DeleteInstance removes runID's snapshot.
func (m *MemStore) DeleteInstance(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, runID)
	return nil
}

// ListInstances returns run IDs matching the given filters.
func (m *MemStore) ListInstances(_ context.Context, workflowID string, status engine.Status, hasStatus bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for runID, inst := range m.instances {
		if workflowID != "" && inst.WorkflowID != workflowID {
			continue
		}
		if hasStatus && inst.Status != status {
			continue
		}
		out = append(out, runID)
	}
	return out, nil
}

// CheckIdempotency reports whether (runID, stepID, invocation) has
// already been recorded, returning its Result for replay if so. The
// lookup key is the composite of the three identifying fields rather
// than a caller-supplied hash.
func (m *MemStore) CheckIdempotency(_ context.Context, runID, stepID string, invocation int) (engine.Result, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.idemKeys[idemKey(runID, stepID, invocation)]
	return result, ok, nil
}

// RecordIdempotency stores result under (runID, stepID, invocation),
// for callers that want replays of the same invocation to short-circuit
// rather than re-run side effects. The executor does not call it.
func (m *MemStore) RecordIdempotency(_ context.Context, runID, stepID string, invocation int, result engine.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idemKeys[idemKey(runID, stepID, invocation)] = result
	return nil
}

func idemKey(runID, stepID string, invocation int) string {
	return runID + "\x00" + stepID + "\x00" + strconv.Itoa(invocation)
}
