package engine

import "reflect"

// Router selects the next step from a completed step's Result, the
// owning Workflow's graph, and the run's Context, dispatching by
// most-specific-supertype match over Step.NextClasses.
type Router struct{}

// NewRouter constructs a Router. Stateless today; kept as a type so
// callers can later swap in alternate routing strategies without
// changing the executor's call sites.
func NewRouter() *Router {
	return &Router{}
}

// routeOutcome is what the router decided for one step completion.
type routeOutcome struct {
	// nextStepID is set when routing selects a concrete successor.
	nextStepID string

	// terminal is set for Finish.
	terminal bool
	finalValue any

	// suspend/async are set when the step paused the run; the executor
	// handles persistence and status transition, not the router.
	suspend *SuspendResult
	async   *AsyncResult

	// failErr is set when routing itself fails (MissingSuccessor, or an
	// unrecognized Result variant); distinct from the step's own
	// FailResult, which
	// the retry executor handles before the router ever sees it.
	failErr error
}

// Route dispatches one Result to its routing outcome.
func (r *Router) Route(step *Step, result Result, wf *Workflow) routeOutcome {
	switch res := result.(type) {
	case ContinueResult:
		next, err := r.selectSuccessor(step, res.Value, wf)
		if err != nil {
			return routeOutcome{failErr: err}
		}
		if next == "" {
			return routeOutcome{failErr: &EngineError{
				Message: "step " + step.ID + " returned Continue with no successor",
				Code:    CodeMissingSuccessor,
			}}
		}
		return routeOutcome{nextStepID: next}

	case BranchResult:
		next, err := r.selectSuccessor(step, res.Event, wf)
		if err != nil {
			return routeOutcome{failErr: err}
		}
		if next == "" {
			return routeOutcome{failErr: &EngineError{
				Message: "step " + step.ID + " branch event matched no successor",
				Code:    CodeMissingSuccessor,
			}}
		}
		return routeOutcome{nextStepID: next}

	case FinishResult:
		return routeOutcome{terminal: true, finalValue: res.Value}

	case SuspendResult:
		cp := res
		return routeOutcome{suspend: &cp}

	case AsyncResult:
		cp := res
		return routeOutcome{async: &cp}

	case FailResult:
		// The retry executor resolves Fail before routing; reaching
		// here means retries were exhausted or the policy was absent,
		// and the executor has already converted this into a terminal
		// Fail path. The router never re-derives retry decisions.
		return routeOutcome{failErr: res.Err}

	default:
		return routeOutcome{failErr: ErrUnhandledResultVariant}
	}
}

// selectSuccessor implements the "most-specific-supertype, first-
// declared tie-break" rule shared by Continue and Branch dispatch.
// Equally specific matches are always resolved by declaration order,
// so routing never returns AmbiguousBranch; duplicate types mapped to
// different steps are rejected earlier, by Workflow.validate.
func (r *Router) selectSuccessor(step *Step, value any, wf *Workflow) (string, error) {
	if len(step.NextClasses) == 0 {
		return step.DefaultSuccessor, nil
	}

	valueType := reflect.TypeOf(value)
	if valueType == nil {
		return step.DefaultSuccessor, nil
	}

	type candidate struct {
		nc    NextClass
		exact bool
	}
	var matches []candidate

	for _, nc := range step.NextClasses {
		if nc.Type == nil {
			continue
		}
		if valueType == nc.Type {
			matches = append(matches, candidate{nc: nc, exact: true})
			continue
		}
		if nc.Type.Kind() == reflect.Interface && valueType.Implements(nc.Type) {
			matches = append(matches, candidate{nc: nc, exact: false})
		}
	}

	if len(matches) == 0 {
		return step.DefaultSuccessor, nil
	}

	// Prefer exact type matches (most specific) over interface matches.
	best := matches[0]
	bestIsUniqueExact := true
	for _, m := range matches[1:] {
		switch {
		case m.exact && !best.exact:
			best = m
			bestIsUniqueExact = true
		case m.exact == best.exact:
			bestIsUniqueExact = false
		}
	}

	if !bestIsUniqueExact {
		// Multiple equally-specific matches: first declared wins.
		for _, nc := range step.NextClasses {
			for _, m := range matches {
				if m.nc == nc && m.exact == best.exact {
					return nc.StepID, nil
				}
			}
		}
	}

	return best.nc.StepID, nil
}
