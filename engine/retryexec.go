package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryMetricsSink receives per-attempt notifications from the retry
// executor: every attempt, success, failure, and exhaustion. Implemented
// by Metrics.
type RetryMetricsSink interface {
	RecordAttempt(stepID string)
	RecordSuccess(stepID string, duration time.Duration)
	RecordFailure(stepID string, kind string)
	RecordExhaustion(stepID string)
	RecordRetryDelay(stepID string, d time.Duration)
}

// RetryExecutor wraps step invocation with invocation-limit and
// retry-policy enforcement: backoff via computeBackoff, attempt
// tracking via a per-step attempt counter, and metrics notified on
// every attempt/success/failure/exhaustion.
type RetryExecutor struct {
	metrics RetryMetricsSink
	rng     *rand.Rand
}

// NewRetryExecutor creates a RetryExecutor. metrics may be nil.
func NewRetryExecutor(metrics RetryMetricsSink, rng *rand.Rand) *RetryExecutor {
	return &RetryExecutor{metrics: metrics, rng: rng}
}

// attemptNumberRecorder is implemented by Metrics but kept out of
// RetryMetricsSink so other sinks don't have to supply it.
type attemptNumberRecorder interface {
	RecordAttemptNumber(stepID string, attempt int)
}

func (re *RetryExecutor) recordAttemptNumber(stepID string, attempt int) {
	if re.metrics == nil {
		return
	}
	if r, ok := re.metrics.(attemptNumberRecorder); ok {
		r.RecordAttemptNumber(stepID, attempt)
	}
}

// Invoke runs step against input, applying the invocation limit and
// retry policy, and returns the final Result along with the last
// ExecutionRecord produced. ctx is shared by every attempt and by the
// backoff waits between them, so its deadline (if any) bounds the whole
// retry loop: a deadline reached during backoff returns Fail(ctx.Err()).
func (re *RetryExecutor) Invoke(ctx context.Context, ctxState *Context, step *Step, input any) (Result, []ExecutionRecord) {
	count := ctxState.RecordStepExecution(step.ID)
	if count > step.InvocationLimit {
		switch step.OnLimit {
		case OnLimitError:
			return Fail(&EngineError{
				Message: fmt.Sprintf("step %s exceeded invocation limit %d", step.ID, step.InvocationLimit),
				Code:    CodeInvocationLimitExceeded,
			}), nil
		case OnLimitStop:
			return Finish(nil), nil
		case OnLimitContinue:
			// Advisory only; fall through to normal invocation.
		}
	}

	if step.RetryPolicy == nil {
		re.recordAttemptNumber(step.ID, 1)
		return re.invokeOnce(ctx, step, input, 1)
	}

	policy := step.RetryPolicy
	var records []ExecutionRecord
	var rc *RetryContext
	if existing, ok := ctxState.GetRetryContext(step.ID); ok {
		rc = existing
	} else {
		rc = &RetryContext{StepID: step.ID, MaxAttempts: policy.MaxAttempts, FirstAttempt: time.Now()}
	}

	for attempt := rc.AttemptNumber + 1; ; attempt++ {
		rc.AttemptNumber = attempt
		rc.CurrentAttempt = time.Now()
		if rc.FirstAttempt.IsZero() {
			rc.FirstAttempt = rc.CurrentAttempt
		}
		ctxState.UpdateRetryContext(step.ID, rc)

		if re.metrics != nil {
			re.metrics.RecordAttempt(step.ID)
		}
		re.recordAttemptNumber(step.ID, attempt)

		result, rec := re.invokeOnce(ctx, step, input, attempt)
		records = append(records, rec...)

		failErr, isFail := extractFailure(result, policy)
		if !isFail {
			if re.metrics != nil && len(rec) > 0 && rec[len(rec)-1].Success {
				re.metrics.RecordSuccess(step.ID, rec[len(rec)-1].Duration)
			}
			ctxState.ClearRetryContext(step.ID)
			return result, records
		}

		kind := fmt.Sprintf("%T", failErr)
		if re.metrics != nil {
			re.metrics.RecordFailure(step.ID, kind)
		}
		rc.Previous = append(rc.Previous, RetryAttempt{
			AttemptNumber: attempt,
			Time:          rc.CurrentAttempt,
			FailureKind:   kind,
			FailureMsg:    failErr.Error(),
			Duration:      rec[len(rec)-1].Duration,
		})
		ctxState.UpdateRetryContext(step.ID, rc)

		if !policy.shouldRetry(failErr) || attempt >= policy.MaxAttempts {
			if re.metrics != nil {
				re.metrics.RecordExhaustion(step.ID)
			}
			return Fail(&EngineError{
				Message: fmt.Sprintf("step %s: retries exhausted after %d attempts: %v", step.ID, attempt, failErr),
				Code:    CodeRetryExhausted,
				Cause:   failErr,
			}), records
		}

		delay := computeBackoff(attempt, policy, re.rng)
		if re.metrics != nil {
			re.metrics.RecordRetryDelay(step.ID, delay)
		}
		select {
		case <-ctx.Done():
			return Fail(ctx.Err()), records
		case <-time.After(delay):
		}
	}
}

// panicError marks a FailResult produced by invokeOnce's panic
// recovery, which is always treated as an infrastructure fault subject
// to retry regardless of RetryOnFailResult: a step that returns
// Fail(err) deliberately is a business outcome and only retried when
// RetryOnFailResult opts in, but a panic is never deliberate.
type panicError struct{ cause any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.cause) }

// extractFailure reports whether result counts as a retryable failure
// under policy, and if so returns the underlying error.
func extractFailure(result Result, policy *RetryPolicy) (error, bool) {
	fr, ok := result.(FailResult)
	if !ok {
		return nil, false
	}
	if _, isPanic := fr.Err.(*panicError); isPanic {
		return fr.Err, true
	}
	if !policy.RetryOnFailResult {
		return fr.Err, false
	}
	return fr.Err, true
}

// invokeOnce calls the step's Executor exactly once, recovering a
// panic into a FailResult (steps are third-party code and must not be
// able to crash the executor), and returns a single ExecutionRecord.
func (re *RetryExecutor) invokeOnce(ctx context.Context, step *Step, input any, attempt int) (result Result, records []ExecutionRecord) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = Fail(&panicError{cause: r})
		}
		records = []ExecutionRecord{{
			StepID:    step.ID,
			Input:     input,
			Result:    result,
			StartTime: start,
			EndTime:   time.Now(),
			Success:   isSuccess(result),
			Duration:  time.Since(start),
			Attempt:   attempt,
		}}
	}()
	result = step.Executor.Execute(ctx, input)
	return result, nil
}

func isSuccess(result Result) bool {
	_, failed := result.(FailResult)
	return !failed
}
