package engine

import (
	"sync"

	"github.com/driftkit-go/workflow-engine/engine/schema"
)

// SuspensionRecord is keyed by run ID: the prompt value, the expected
// input type, metadata, and the step that suspended.
type SuspensionRecord struct {
	RunID             string
	Prompt            any
	ExpectedInputType any
	Metadata          map[string]any
	SuspendingStepID  string
}

// SuspensionManager persists pause points and matches resume inputs: a
// suspension is a single-shot checkpoint consumed exactly once on
// resume.
//
// Concurrent resumes are serialized by one manager-wide mutex held
// while the record is validated and consumed — only the first claimant
// proceeds; later ones get ErrNotSuspended.
type SuspensionManager struct {
	mu       sync.Mutex
	pending  map[string]*SuspensionRecord
	provider schema.Provider
}

// NewSuspensionManager creates a manager. provider may be nil, in
// which case resume type validation is skipped entirely.
func NewSuspensionManager(provider schema.Provider) *SuspensionManager {
	return &SuspensionManager{
		pending:  make(map[string]*SuspensionRecord),
		provider: provider,
	}
}

// Suspend records a new suspension for runID, evicting any prior one:
// at most one pending suspension per run.
func (m *SuspensionManager) Suspend(rec *SuspensionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[rec.RunID] = rec
}

// Resume validates and consumes runID's suspension, returning it so
// the caller can route from the suspending step's successor. Returns
// ErrNotSuspended if none exists, or ErrResumeTypeMismatch if value
// fails schema validation (the record remains pending on mismatch).
func (m *SuspensionManager) Resume(runID string, value any) (*SuspensionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.pending[runID]
	if !ok {
		return nil, ErrNotSuspended
	}

	if m.provider != nil {
		sch, err := m.provider.Describe(rec.ExpectedInputType)
		if err == nil && sch != nil {
			if !m.provider.Validate(value, sch) {
				return nil, ErrResumeTypeMismatch
			}
		}
	}

	delete(m.pending, runID)
	return rec, nil
}

// Evict removes runID's pending suspension without validating it,
// used on cancel.
func (m *SuspensionManager) Evict(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, runID)
}

// Peek returns runID's pending suspension without consuming it, used
// by GetCurrentResult.
func (m *SuspensionManager) Peek(runID string) (*SuspensionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.pending[runID]
	return rec, ok
}
