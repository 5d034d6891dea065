package config

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkit-go/workflow-engine/engine"
)

func echoExecutor() engine.StepExecutor {
	return engine.StepExecutorFunc(func(_ context.Context, input any) engine.Result {
		return engine.Finish(input)
	})
}

func TestCompileLinearWorkflow(t *testing.T) {
	def, err := LoadWorkflowDef("testdata/linear.yaml")
	require.NoError(t, err)

	registry := StepRegistry{"echo": echoExecutor()}
	wf, err := Compile(def, registry, nil)
	require.NoError(t, err)

	assert.Equal(t, "linear-demo", wf.ID)
	assert.Equal(t, "start", wf.InitialStepID())

	start := wf.Step("start")
	require.NotNil(t, start)
	assert.Equal(t, "finish", start.DefaultSuccessor)
}

func TestCompileUnregisteredExecutor(t *testing.T) {
	def, err := LoadWorkflowDef("testdata/linear.yaml")
	require.NoError(t, err)

	_, err = Compile(def, StepRegistry{}, nil)
	assert.Error(t, err)
}

func TestCompileRetryPolicyWithExpr(t *testing.T) {
	def, err := LoadWorkflowDef("testdata/retrying.yaml")
	require.NoError(t, err)

	registry := StepRegistry{
		"flaky": echoExecutor(),
		"echo":  echoExecutor(),
	}
	wf, err := Compile(def, registry, nil)
	require.NoError(t, err)

	step := wf.Step("start")
	require.NotNil(t, step)
	require.NotNil(t, step.RetryPolicy)
	require.NotNil(t, step.RetryPolicy.ShouldRetry)

	assert.True(t, step.RetryPolicy.ShouldRetry(errors.New("transient network blip")))
	assert.False(t, step.RetryPolicy.ShouldRetry(errors.New("permanent validation error")))
}

func TestCompileRoutesPickFastPathWhenVarMatches(t *testing.T) {
	def, err := LoadWorkflowDef("testdata/routed.yaml")
	require.NoError(t, err)

	registry := StepRegistry{"echo": echoExecutor()}

	wf, err := Compile(def, registry, map[string]any{"env": "staging"})
	require.NoError(t, err)
	assert.Equal(t, "fast_path", wf.Step("start").DefaultSuccessor)

	wf, err = Compile(def, registry, map[string]any{"env": "production"})
	require.NoError(t, err)
	assert.Equal(t, "slow_path", wf.Step("start").DefaultSuccessor)

	wf, err = Compile(def, registry, nil)
	require.NoError(t, err)
	assert.Equal(t, "slow_path", wf.Step("start").DefaultSuccessor)
}

func TestParseWorkflowDefRejectsMalformedYAML(t *testing.T) {
	_, err := ParseWorkflowDef([]byte("id: [unterminated"))
	assert.Error(t, err)
}
