package engine

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoStep(id string, initial bool) *Step {
	return &Step{
		ID:        id,
		Executor:  StepExecutorFunc(func(_ context.Context, input any) Result { return Finish(input) }),
		IsInitial: initial,
	}
}

func TestAddStepRejectsDuplicateID(t *testing.T) {
	wf := NewWorkflow("wf", "v1")
	require.NoError(t, wf.AddStep(echoStep("a", true)))

	err := wf.AddStep(echoStep("a", false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step ID")
}

func TestAddStepRejectsEmptyIDAndNil(t *testing.T) {
	wf := NewWorkflow("wf", "v1")

	err := wf.AddStep(nil)
	require.Error(t, err)

	err = wf.AddStep(&Step{ID: "", Executor: StepExecutorFunc(func(context.Context, any) Result { return Finish(nil) })})
	require.Error(t, err)
}

func TestAddStepDefaultsInvocationLimit(t *testing.T) {
	wf := NewWorkflow("wf", "v1")
	step := echoStep("a", true)
	require.NoError(t, wf.AddStep(step))
	assert.Greater(t, step.InvocationLimit, 0)
}

func TestAddStepOnFrozenWorkflowFails(t *testing.T) {
	wf := NewWorkflow("wf", "v1")
	require.NoError(t, wf.AddStep(echoStep("a", true)))
	require.NoError(t, wf.validate())

	err := wf.AddStep(echoStep("b", false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")
}

func TestValidateRequiresInitialStep(t *testing.T) {
	wf := NewWorkflow("wf", "v1")
	require.NoError(t, wf.AddStep(echoStep("a", false)))

	err := wf.validate()
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeInvalidWorkflow, ee.Code)
}

func TestValidateRejectsMissingDefaultSuccessor(t *testing.T) {
	wf := NewWorkflow("wf", "v1")
	start := echoStep("start", true)
	start.DefaultSuccessor = "ghost"
	require.NoError(t, wf.AddStep(start))

	err := wf.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default successor")
}

func TestValidateRejectsMissingNextClassTarget(t *testing.T) {
	wf := NewWorkflow("wf", "v1")
	start := echoStep("start", true)
	start.NextClasses = []NextClass{{Type: reflect.TypeOf(""), StepID: "ghost"}}
	require.NoError(t, wf.AddStep(start))

	err := wf.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nextClasses target")
}

func TestValidateRejectsAmbiguousNextClasses(t *testing.T) {
	wf := NewWorkflow("wf", "v1")
	a := echoStep("a", true)
	b := echoStep("b", false)
	c := echoStep("c", false)
	a.NextClasses = []NextClass{
		{Type: reflect.TypeOf(""), StepID: "b"},
		{Type: reflect.TypeOf(""), StepID: "c"},
	}
	require.NoError(t, wf.AddStep(a))
	require.NoError(t, wf.AddStep(b))
	require.NoError(t, wf.AddStep(c))

	err := wf.validate()
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeAmbiguousBranch, ee.Code)
}

func TestValidateRejectsUnbrokenCycle(t *testing.T) {
	wf := NewWorkflow("wf", "v1")
	a := echoStep("a", true)
	a.DefaultSuccessor = "b"
	b := echoStep("b", false)
	b.DefaultSuccessor = "a"
	require.NoError(t, wf.AddStep(a))
	require.NoError(t, wf.AddStep(b))

	err := wf.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestValidateAllowsCycleBrokenByAsyncHandler(t *testing.T) {
	wf := NewWorkflow("wf", "v1")
	a := echoStep("a", true)
	a.DefaultSuccessor = "b"
	b := echoStep("b", false)
	b.IsAsyncHandler = true
	b.DefaultSuccessor = "a"
	require.NoError(t, wf.AddStep(a))
	require.NoError(t, wf.AddStep(b))

	assert.NoError(t, wf.validate())
}

func TestValidateAllowsSelfLoopSingleStep(t *testing.T) {
	wf := NewWorkflow("wf", "v1")
	a := echoStep("a", true)
	a.DefaultSuccessor = "a"
	require.NoError(t, wf.AddStep(a))

	assert.NoError(t, wf.validate())
}

func TestStepIDsPreservesDeclarationOrder(t *testing.T) {
	wf := NewWorkflow("wf", "v1")
	require.NoError(t, wf.AddStep(echoStep("a", true)))
	require.NoError(t, wf.AddStep(echoStep("b", false)))
	require.NoError(t, wf.AddStep(echoStep("c", false)))

	assert.Equal(t, []string{"a", "b", "c"}, wf.StepIDs())
}
