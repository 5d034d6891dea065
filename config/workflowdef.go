// Package config loads declarative workflow definitions and process
// configuration for the engine and its CLI: YAML-and-expr workflow
// authoring plus layered config loading (flags/env/file).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/driftkit-go/workflow-engine/engine"
)

// WorkflowDef is the YAML-authored shape of an engine.Workflow. Step
// executors themselves are Go code (StepRegistry), but the graph
// topology, retry policy, and invocation limits are all declarative so
// operators can reshape routing without a rebuild.
type WorkflowDef struct {
	ID      string     `yaml:"id"`
	Version string     `yaml:"version"`
	Steps   []StepDef  `yaml:"steps"`
}

// StepDef declares one step. Executor names a StepExecutor registered
// in the StepRegistry passed to Compile.
type StepDef struct {
	ID              string     `yaml:"id"`
	Executor        string     `yaml:"executor"`
	Initial         bool       `yaml:"initial"`
	AsyncHandler    bool       `yaml:"asyncHandler"`
	InvocationLimit int        `yaml:"invocationLimit"`
	OnLimit         string     `yaml:"onLimit"` // ERROR|STOP|CONTINUE
	DefaultSuccessor string    `yaml:"defaultSuccessor"`
	Retry           *RetryDef  `yaml:"retry"`

	// Routes picks DefaultSuccessor among several candidates at compile
	// time by evaluating each When expression (in order) against vars
	// supplied to Compile; the first match wins, falling back to
	// DefaultSuccessor if none match. This is deployment-time branching
	// ("use the fast path in staging"), not per-invocation routing —
	// per-invocation branching stays type-based (Step.NextClasses),
	// since routing must be a deterministic function of (graph,
	// context, result), and a result-dependent expr would need to
	// re-derive that determinism itself instead of inheriting it from
	// the router's dispatch rule.
	Routes []RouteDef `yaml:"routes"`
}

// RouteDef is one compile-time-evaluated successor candidate.
type RouteDef struct {
	When   string `yaml:"when"`
	StepID string `yaml:"stepId"`
}

// RetryDef is the YAML mirror of engine.RetryPolicy.
type RetryDef struct {
	MaxAttempts       int    `yaml:"maxAttempts"`
	BaseDelay         string `yaml:"baseDelay"` // parsed with time.ParseDuration
	MaxDelay          string `yaml:"maxDelay"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier"`
	Jitter            bool   `yaml:"jitter"`
	RetryOnFailResult bool   `yaml:"retryOnFailResult"`

	// ShouldRetryExpr, if set, compiles to engine.RetryPolicy.ShouldRetry:
	// an expr-lang boolean expression evaluated against {"error": err.Error()}
	// on every failed attempt, taking precedence over AbortOn/RetryOn
	// (which YAML can't express anyway, since they key on Go types).
	ShouldRetryExpr string `yaml:"shouldRetryIf"`
}

// StepRegistry resolves a StepDef.Executor name to the StepExecutor
// that implements it. The embedding application builds this; workflow
// definitions never carry executable code.
type StepRegistry map[string]engine.StepExecutor

// LoadWorkflowDef reads and parses a YAML workflow definition from
// path.
func LoadWorkflowDef(path string) (*WorkflowDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definition %s: %w", path, err)
	}
	return ParseWorkflowDef(data)
}

// ParseWorkflowDef parses a YAML workflow definition from raw bytes.
func ParseWorkflowDef(data []byte) (*WorkflowDef, error) {
	var def WorkflowDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse workflow definition: %w", err)
	}
	return &def, nil
}

// Compile builds a registered engine.Workflow from def, resolving
// executors from registry and route/retry expressions with expr-lang.
// vars is the environment compile-time Routes expressions evaluate
// against (e.g. {"env": "staging"}); nil is treated as empty.
func Compile(def *WorkflowDef, registry StepRegistry, vars map[string]any) (*engine.Workflow, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	wf := engine.NewWorkflow(def.ID, def.Version)

	for _, sd := range def.Steps {
		executor, ok := registry[sd.Executor]
		if !ok {
			return nil, fmt.Errorf("step %s: unregistered executor %q", sd.ID, sd.Executor)
		}

		successor, err := resolveRoutes(sd, vars)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", sd.ID, err)
		}

		step := &engine.Step{
			ID:               sd.ID,
			Executor:         executor,
			IsInitial:        sd.Initial,
			IsAsyncHandler:   sd.AsyncHandler,
			InvocationLimit:  sd.InvocationLimit,
			OnLimit:          parseOnLimit(sd.OnLimit),
			DefaultSuccessor: successor,
		}

		if sd.Retry != nil {
			policy, err := compileRetryPolicy(sd.Retry)
			if err != nil {
				return nil, fmt.Errorf("step %s: retry policy: %w", sd.ID, err)
			}
			step.RetryPolicy = policy
		}

		if err := wf.AddStep(step); err != nil {
			return nil, err
		}
	}

	return wf, nil
}

func resolveRoutes(sd StepDef, vars map[string]any) (string, error) {
	for _, route := range sd.Routes {
		matched, err := evalBool(route.When, vars)
		if err != nil {
			return "", fmt.Errorf("route %q: %w", route.When, err)
		}
		if matched {
			return route.StepID, nil
		}
	}
	return sd.DefaultSuccessor, nil
}

func evalBool(expression string, vars map[string]any) (bool, error) {
	if expression == "" {
		return false, nil
	}
	program, err := expr.Compile(expression, expr.Env(vars), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return false, err
	}
	result, err := expr.Run(program, vars)
	if err != nil {
		return false, err
	}
	b, _ := result.(bool)
	return b, nil
}

func compileRetryPolicy(def *RetryDef) (*engine.RetryPolicy, error) {
	base, err := parseDurationOrZero(def.BaseDelay)
	if err != nil {
		return nil, fmt.Errorf("baseDelay: %w", err)
	}
	maxD, err := parseDurationOrZero(def.MaxDelay)
	if err != nil {
		return nil, fmt.Errorf("maxDelay: %w", err)
	}

	policy := &engine.RetryPolicy{
		MaxAttempts:       def.MaxAttempts,
		BaseDelay:         base,
		MaxDelay:          maxD,
		BackoffMultiplier: def.BackoffMultiplier,
		Jitter:            def.Jitter,
		RetryOnFailResult: def.RetryOnFailResult,
	}

	if def.ShouldRetryExpr != "" {
		program, err := compileShouldRetry(def.ShouldRetryExpr)
		if err != nil {
			return nil, fmt.Errorf("shouldRetryIf: %w", err)
		}
		policy.ShouldRetry = func(err error) bool {
			env := map[string]any{"error": err.Error()}
			result, runErr := expr.Run(program, env)
			if runErr != nil {
				return false
			}
			ok, _ := result.(bool)
			return ok
		}
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

func compileShouldRetry(expression string) (*vm.Program, error) {
	env := map[string]any{"error": ""}
	return expr.Compile(expression, expr.Env(env), expr.AsBool())
}

func parseDurationOrZero(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func parseOnLimit(s string) engine.OnLimit {
	switch s {
	case "STOP":
		return engine.OnLimitStop
	case "CONTINUE":
		return engine.OnLimitContinue
	default:
		return engine.OnLimitError
	}
}
