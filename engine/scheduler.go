package engine

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Scheduler bounds how many runs may have a step executing at once
// across the whole Engine, using golang.org/x/sync/semaphore as a
// simple global cap on concurrently in-flight Execute/Resume calls.
// Per-run step ordering is already handled by Executor.runMutex, so
// the scheduler itself needs no ordering of its own — just admission
// control.
type Scheduler struct {
	sem *semaphore.Weighted
}

// NewScheduler bounds concurrent in-flight runs to maxConcurrent. A
// value <= 0 means unbounded (Acquire/Release become no-ops).
func NewScheduler(maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		return &Scheduler{}
	}
	return &Scheduler{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Scheduler) Acquire(ctx context.Context) error {
	if s.sem == nil {
		return nil
	}
	return s.sem.Acquire(ctx, 1)
}

// Release frees the slot claimed by a prior successful Acquire.
func (s *Scheduler) Release() {
	if s.sem == nil {
		return
	}
	s.sem.Release(1)
}
