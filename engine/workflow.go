package engine

import (
	"context"
	"fmt"
	"reflect"
)

// StepExecutor is the unit of computation a Step wraps. It receives one
// typed input and returns one Result selected from the six-variant
// taxonomy in result.go. Inputs and outputs are `any` rather than a
// shared generic state type since step types vary across a workflow.
type StepExecutor interface {
	Execute(ctx context.Context, input any) Result
}

// StepExecutorFunc adapts a plain function to StepExecutor.
type StepExecutorFunc func(ctx context.Context, input any) Result

// Execute implements StepExecutor.
func (f StepExecutorFunc) Execute(ctx context.Context, input any) Result {
	return f(ctx, input)
}

// OnLimit controls what happens when a step's invocation count exceeds
// its InvocationLimit.
type OnLimit int

const (
	// OnLimitError raises InvocationLimitExceeded, a terminal Fail.
	OnLimitError OnLimit = iota
	// OnLimitStop returns Finish(nil) without invoking the step.
	OnLimitStop
	// OnLimitContinue invokes normally; the limit becomes advisory.
	OnLimitContinue
)

func (o OnLimit) String() string {
	switch o {
	case OnLimitError:
		return "ERROR"
	case OnLimitStop:
		return "STOP"
	case OnLimitContinue:
		return "CONTINUE"
	default:
		return "UNKNOWN"
	}
}

// NextClass declares that, when a step's Continue/Branch output or
// event has runtime type Type, the successor is StepID. Declaration
// order is preserved in Step.NextClasses and used as the router's
// tie-break.
type NextClass struct {
	Type   reflect.Type
	StepID string
}

// Step is one node in a Workflow's graph.
type Step struct {
	// ID is unique within the owning Workflow.
	ID string

	// InputType and OutputType are declared type tags. Neither
	// registration nor the engine reads them: validate does not check
	// NextClasses types against them, and nothing enforces that the
	// Executor's actual Go types match them.
	InputType  reflect.Type
	OutputType reflect.Type

	Executor StepExecutor

	IsInitial      bool
	IsAsyncHandler bool

	RetryPolicy *RetryPolicy

	// InvocationLimit must be >= 1. Zero means "unset"; Workflow.AddStep
	// defaults it to a very large number rather than zero so unset steps
	// are effectively unbounded without needing special-case checks at
	// invocation time.
	InvocationLimit int
	OnLimit         OnLimit

	// NextClasses enables branch routing by output/event value type.
	// DefaultSuccessor is used by the router when the value's runtime
	// type matches no NextClasses entry or the value is nil (the common
	// single-successor case).
	NextClasses      []NextClass
	DefaultSuccessor string
}

// Workflow is an immutable, registered directed graph of Steps, keyed
// by string step IDs. A Workflow is frozen on registration with an
// Engine and reused across many Instances.
type Workflow struct {
	ID      string
	Version string

	steps       map[string]*Step
	order       []string // insertion order, for deterministic iteration
	initialStep string

	frozen bool
}

// NewWorkflow creates an empty, mutable workflow definition. Call
// AddStep for each step, then Register it with an Engine to freeze
// and validate it.
func NewWorkflow(id, version string) *Workflow {
	return &Workflow{
		ID:      id,
		Version: version,
		steps:   make(map[string]*Step),
	}
}

// AddStep registers a step in the workflow graph. Must be called
// before the workflow is registered with an Engine.
func (w *Workflow) AddStep(step *Step) error {
	if w.frozen {
		return &EngineError{Message: "workflow is frozen: " + w.ID, Code: CodeInvalidWorkflow}
	}
	if step == nil {
		return &EngineError{Message: "step cannot be nil", Code: CodeInvalidWorkflow}
	}
	if step.ID == "" {
		return &EngineError{Message: "step ID cannot be empty", Code: CodeInvalidWorkflow}
	}
	if _, exists := w.steps[step.ID]; exists {
		return &EngineError{Message: "duplicate step ID: " + step.ID, Code: CodeInvalidWorkflow}
	}
	if step.InvocationLimit <= 0 {
		step.InvocationLimit = 1 << 30
	}
	w.steps[step.ID] = step
	w.order = append(w.order, step.ID)
	if step.IsInitial {
		w.initialStep = step.ID
	}
	return nil
}

// Step returns the step with the given ID, or nil if absent.
func (w *Workflow) Step(id string) *Step {
	return w.steps[id]
}

// InitialStepID returns the workflow's designated entry point.
func (w *Workflow) InitialStepID() string {
	return w.initialStep
}

// StepIDs returns step IDs in declaration order.
func (w *Workflow) StepIDs() []string {
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}

// validate freezes the workflow and enforces the registration contract:
// an initial step must exist, step IDs are unique (by construction of
// AddStep), every NextClasses/DefaultSuccessor target must exist, and
// any multi-step cycle must pass through a step capable of Suspend/Async — a
// non-nil RetryPolicy does NOT count as a break, only the
// IsAsyncHandler annotation does.
func (w *Workflow) validate() error {
	if w.ID == "" {
		return &EngineError{Message: "workflow ID cannot be empty", Code: CodeInvalidWorkflow}
	}
	if w.initialStep == "" {
		return &EngineError{Message: "workflow has no initial step: " + w.ID, Code: CodeInvalidWorkflow}
	}
	if _, ok := w.steps[w.initialStep]; !ok {
		return &EngineError{Message: "initial step not registered: " + w.initialStep, Code: CodeInvalidWorkflow}
	}

	for _, id := range w.order {
		step := w.steps[id]
		if step.DefaultSuccessor != "" {
			if _, ok := w.steps[step.DefaultSuccessor]; !ok {
				return &EngineError{
					Message: fmt.Sprintf("step %s: default successor %s does not exist", id, step.DefaultSuccessor),
					Code:    CodeInvalidWorkflow,
				}
			}
		}
		seenTypes := make(map[reflect.Type]string, len(step.NextClasses))
		for _, nc := range step.NextClasses {
			if _, ok := w.steps[nc.StepID]; !ok {
				return &EngineError{
					Message: fmt.Sprintf("step %s: nextClasses target %s does not exist", id, nc.StepID),
					Code:    CodeInvalidWorkflow,
				}
			}
			if prior, dup := seenTypes[nc.Type]; dup && prior != nc.StepID {
				return &EngineError{
					Message: fmt.Sprintf("step %s: type %v maps to both %s and %s", id, nc.Type, prior, nc.StepID),
					Code:    CodeAmbiguousBranch,
				}
			}
			seenTypes[nc.Type] = nc.StepID
		}
	}

	if err := w.detectUnbrokenCycle(); err != nil {
		return err
	}

	w.frozen = true
	return nil
}

// detectUnbrokenCycle walks successor edges (DefaultSuccessor and
// NextClasses targets) depth-first. A step that lists itself as a
// successor is allowed. Any other back edge closes a multi-step cycle,
// which is rejected unless some step on the current DFS path is flagged
// Step.IsAsyncHandler; whether a step returns Suspend/Async at runtime
// is not known statically and is not considered.
func (w *Workflow) detectUnbrokenCycle() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(w.steps))

	var successors func(id string) []string
	successors = func(id string) []string {
		step := w.steps[id]
		out := make([]string, 0, len(step.NextClasses)+1)
		if step.DefaultSuccessor != "" {
			out = append(out, step.DefaultSuccessor)
		}
		for _, nc := range step.NextClasses {
			out = append(out, nc.StepID)
		}
		return out
	}

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, next := range successors(id) {
			if next == id {
				// Single-step self loop with no distinct intervening
				// step can never terminate without a runtime Suspend/
				// Async/Finish from the step itself; that's the step's
				// responsibility, not a graph misconfiguration, so it
				// is allowed. Multi-step cycles are checked below.
				continue
			}
			switch color[next] {
			case white:
				if err := visit(next); err != nil {
					return err
				}
			case gray:
				if !cyclePassesAsyncStep(w, id, next, color) {
					return &EngineError{
						Message: fmt.Sprintf("workflow %s: cycle detected through %s -> %s with no Suspend/Async break", w.ID, id, next),
						Code:    CodeInvalidWorkflow,
					}
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, id := range w.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// cyclePassesAsyncStep reports whether any step currently on the DFS
// stack (color == gray) is flagged IsAsyncHandler. Async handlers are themselves Steps,
// so a cycle that loops back through one is presumed to be broken at
// runtime by that step's Suspend/Async return.
func cyclePassesAsyncStep(w *Workflow, from, to string, color map[string]int) bool {
	for id, c := range color {
		if c != 1 {
			continue
		}
		if w.steps[id].IsAsyncHandler {
			return true
		}
	}
	return false
}
