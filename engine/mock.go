package engine

import (
	"context"
	"strings"
	"sync"
)

// MockEntry registers a replacement Result for steps matching
// (WorkflowID, StepID). StepID is matched by longest-suffix: an entry
// with StepID "fetch-user" beats an entry with StepID "" (meaning "any
// step") when both match, and an entry with a longer matching suffix
// beats a shorter one. An empty WorkflowID matches any workflow.
// Predicate, if set, additionally gates the match on the step's input
// and must return true for the entry to apply.
type MockEntry struct {
	WorkflowID string
	StepID     string
	Predicate  func(input any) bool
	Result     Result
}

func (e MockEntry) matches(workflowID, stepID string, input any) bool {
	if e.WorkflowID != "" && e.WorkflowID != workflowID {
		return false
	}
	if e.StepID != "" && !strings.HasSuffix(stepID, e.StepID) {
		return false
	}
	if e.Predicate != nil && !e.Predicate(input) {
		return false
	}
	return true
}

// MockRegistry is a mutex-guarded set of MockEntry rules, looked up by
// (workflowID, stepID, input) with longest-StepID-suffix-wins
// precedence. It is the mechanism by which a test substitutes a
// step's real invocation with a canned Result without touching the
// workflow's registered steps.
type MockRegistry struct {
	mu      sync.Mutex
	entries []MockEntry
}

// NewMockRegistry returns an empty registry.
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{}
}

// Register adds entry to the registry. Later registrations do not
// shadow earlier ones of equal specificity; Lookup's suffix-length
// comparison alone decides precedence.
func (r *MockRegistry) Register(entry MockEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// Clear removes every registered entry.
func (r *MockRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// Lookup returns the best-matching entry's Result for (workflowID,
// stepID, input), or (nil, false) if nothing matches. "Best" means the
// longest StepID suffix among matching entries; ties keep the first
// registered.
func (r *MockRegistry) Lookup(workflowID, stepID string, input any) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *MockEntry
	for i := range r.entries {
		entry := &r.entries[i]
		if !entry.matches(workflowID, stepID, input) {
			continue
		}
		if best == nil || len(entry.StepID) > len(best.StepID) {
			best = entry
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Result, true
}

// MockInterceptor is a ready-to-use Interceptor backed by a
// MockRegistry: BeforeStep substitutes the registry's matching Result
// in place of the step's real invocation, the core mechanism behind
// test-time step replacement.
type MockInterceptor struct {
	BaseInterceptor
	Registry *MockRegistry
}

// NewMockInterceptor wraps registry as an Interceptor ready to be
// passed to Engine.AddInterceptor.
func NewMockInterceptor(registry *MockRegistry) *MockInterceptor {
	return &MockInterceptor{Registry: registry}
}

func (m *MockInterceptor) BeforeStep(_ context.Context, _, workflowID string, step *Step, input any) (Result, error) {
	if result, ok := m.Registry.Lookup(workflowID, step.ID, input); ok {
		return result, nil
	}
	return nil, nil
}
