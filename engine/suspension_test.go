package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkit-go/workflow-engine/engine/schema"
)

func TestSuspensionManagerResumeRoundTrip(t *testing.T) {
	m := NewSuspensionManager(nil)
	rec := &SuspensionRecord{RunID: "run-1", Prompt: "approve?", SuspendingStepID: "start"}
	m.Suspend(rec)

	got, err := m.Resume("run-1", "yes")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = m.Resume("run-1", "yes")
	assert.ErrorIs(t, err, ErrNotSuspended)
}

func TestSuspensionManagerNewSuspendEvictsPrior(t *testing.T) {
	m := NewSuspensionManager(nil)
	m.Suspend(&SuspensionRecord{RunID: "run-1", SuspendingStepID: "a"})
	m.Suspend(&SuspensionRecord{RunID: "run-1", SuspendingStepID: "b"})

	rec, ok := m.Peek("run-1")
	require.True(t, ok)
	assert.Equal(t, "b", rec.SuspendingStepID)
}

func TestSuspensionManagerEvict(t *testing.T) {
	m := NewSuspensionManager(nil)
	m.Suspend(&SuspensionRecord{RunID: "run-1"})
	m.Evict("run-1")

	_, err := m.Resume("run-1", "x")
	assert.ErrorIs(t, err, ErrNotSuspended)
}

type stubProvider struct {
	schema    schema.Schema
	validates bool
}

func (p stubProvider) Describe(any) (schema.Schema, error) { return p.schema, nil }
func (p stubProvider) Validate(any, schema.Schema) bool    { return p.validates }

func TestSuspensionManagerResumeTypeMismatchKeepsRecordPending(t *testing.T) {
	m := NewSuspensionManager(stubProvider{schema: "int-schema", validates: false})
	m.Suspend(&SuspensionRecord{RunID: "run-1", ExpectedInputType: "int"})

	_, err := m.Resume("run-1", "wrong-type")
	assert.ErrorIs(t, err, ErrResumeTypeMismatch)

	// record must still be pending after a failed validation
	_, ok := m.Peek("run-1")
	assert.True(t, ok)
}

func TestSuspensionManagerResumeValidatesSuccessfully(t *testing.T) {
	m := NewSuspensionManager(stubProvider{schema: "int-schema", validates: true})
	m.Suspend(&SuspensionRecord{RunID: "run-1", ExpectedInputType: "int"})

	_, err := m.Resume("run-1", 42)
	assert.NoError(t, err)
}
