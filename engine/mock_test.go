package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockRegistryLookupExactStepMatch(t *testing.T) {
	reg := NewMockRegistry()
	reg.Register(MockEntry{StepID: "fetch-user", Result: Finish("mocked-user")})

	result, ok := reg.Lookup("any-workflow", "fetch-user", nil)
	require.True(t, ok)
	assert.Equal(t, Finish("mocked-user"), result)

	_, ok = reg.Lookup("any-workflow", "fetch-order", nil)
	assert.False(t, ok)
}

func TestMockRegistryLongestSuffixWinsOverCatchAll(t *testing.T) {
	reg := NewMockRegistry()
	reg.Register(MockEntry{StepID: "", Result: Finish("catch-all")})
	reg.Register(MockEntry{StepID: "fetch-user", Result: Finish("specific")})

	result, ok := reg.Lookup("wf", "fetch-user", nil)
	require.True(t, ok)
	assert.Equal(t, Finish("specific"), result)

	result, ok = reg.Lookup("wf", "fetch-order", nil)
	require.True(t, ok)
	assert.Equal(t, Finish("catch-all"), result)
}

func TestMockRegistryWorkflowScoping(t *testing.T) {
	reg := NewMockRegistry()
	reg.Register(MockEntry{WorkflowID: "billing", StepID: "charge", Result: Finish("billing-mock")})

	_, ok := reg.Lookup("shipping", "charge", nil)
	assert.False(t, ok)

	result, ok := reg.Lookup("billing", "charge", nil)
	require.True(t, ok)
	assert.Equal(t, Finish("billing-mock"), result)
}

func TestMockRegistryPredicateGating(t *testing.T) {
	reg := NewMockRegistry()
	reg.Register(MockEntry{
		StepID:    "charge",
		Predicate: func(input any) bool { return input == "vip" },
		Result:    Finish("vip-mock"),
	})

	_, ok := reg.Lookup("wf", "charge", "regular")
	assert.False(t, ok)

	result, ok := reg.Lookup("wf", "charge", "vip")
	require.True(t, ok)
	assert.Equal(t, Finish("vip-mock"), result)
}

func TestMockRegistryClearRemovesEntries(t *testing.T) {
	reg := NewMockRegistry()
	reg.Register(MockEntry{StepID: "charge", Result: Finish("mocked")})
	reg.Clear()

	_, ok := reg.Lookup("wf", "charge", nil)
	assert.False(t, ok)
}

// TestMockInterceptorSkipsRealInvocation confirms that when the
// registry supplies a replacement Result, the step's own Executor is
// never invoked: runLoop substitutes the mocked Result in its place.
func TestMockInterceptorSkipsRealInvocation(t *testing.T) {
	eng := newTestEngine()
	wf := NewWorkflow("mocked-run", "v1")

	invoked := false
	start := &Step{
		ID:               "start",
		IsInitial:        true,
		DefaultSuccessor: "finish",
		Executor: StepExecutorFunc(func(_ context.Context, input any) Result {
			invoked = true
			return Continue(input)
		}),
	}
	finish := &Step{
		ID: "finish",
		Executor: StepExecutorFunc(func(_ context.Context, input any) Result {
			return Finish(input)
		}),
	}
	require.NoError(t, wf.AddStep(start))
	require.NoError(t, wf.AddStep(finish))
	require.NoError(t, eng.Register(wf))

	registry := NewMockRegistry()
	registry.Register(MockEntry{StepID: "start", Result: Continue("replaced")})
	eng.AddInterceptor(NewMockInterceptor(registry))

	inst, err := eng.Execute(context.Background(), "mocked-run", "v1", "original")
	require.NoError(t, err)
	assert.False(t, invoked, "mocked step's real Executor must not run")
	assert.Equal(t, StatusCompleted, inst.Status)
	assert.Equal(t, "replaced", inst.History[len(inst.History)-1].Result.(FinishResult).Value)
}

func TestMockInterceptorLeavesUnmockedStepsAlone(t *testing.T) {
	eng := newTestEngine()
	wf := linearWorkflow(t)
	require.NoError(t, eng.Register(wf))

	registry := NewMockRegistry()
	registry.Register(MockEntry{StepID: "nonexistent-step", Result: Finish("unused")})
	eng.AddInterceptor(NewMockInterceptor(registry))

	inst, err := eng.Execute(context.Background(), "linear", "v1", "payload")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, inst.Status)
}
