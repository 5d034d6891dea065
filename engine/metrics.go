package engine

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the engine's Prometheus collector, covering step
// attempts/latency, retries, async task concurrency, and suspensions.
type Metrics struct {
	stepLatency      *prometheus.HistogramVec
	stepAttempts     *prometheus.CounterVec
	successesTotal   *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	retryDelayMs     *prometheus.HistogramVec
	retriesExhausted *prometheus.CounterVec
	asyncInflight    prometheus.Gauge
	asyncDuration    *prometheus.HistogramVec
	suspensions      prometheus.Counter
	resumes          prometheus.Counter
	maxAttempts      *prometheus.GaugeVec

	mu      sync.RWMutex
	enabled bool

	countersMu  sync.Mutex
	attempts    map[string]int64
	successes   map[string]int64
	maxAttempt  map[string]int
}

// NewMetrics creates and registers the engine's metrics against
// registry (use prometheus.DefaultRegisterer for the global registry,
// or a fresh *prometheus.Registry for test isolation).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,

		attempts:   make(map[string]int64),
		successes:  make(map[string]int64),
		maxAttempt: make(map[string]int),

		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow_engine",
			Name:      "step_latency_ms",
			Help:      "Step execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"step_id", "status"}),

		stepAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow_engine",
			Name:      "step_attempts_total",
			Help:      "Total step invocation attempts, including retries",
		}, []string{"step_id"}),

		successesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow_engine",
			Name:      "step_successes_total",
			Help:      "Total step invocations that did not produce a FailResult",
		}, []string{"step_id"}),

		maxAttempts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "workflow_engine",
			Name:      "step_max_attempts_observed",
			Help:      "Highest attempt number observed for a step across all runs",
		}, []string{"step_id"}),

		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow_engine",
			Name:      "retries_total",
			Help:      "Total retry attempts by step and failure kind",
		}, []string{"step_id", "kind"}),

		retryDelayMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow_engine",
			Name:      "retry_delay_ms",
			Help:      "Computed backoff delay before a retry attempt, in milliseconds",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 30000},
		}, []string{"step_id"}),

		retriesExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow_engine",
			Name:      "retries_exhausted_total",
			Help:      "Steps that failed terminally after exhausting their retry policy",
		}, []string{"step_id"}),

		asyncInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow_engine",
			Name:      "async_tasks_inflight",
			Help:      "Number of async handlers currently executing",
		}),

		asyncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow_engine",
			Name:      "async_task_duration_ms",
			Help:      "Async handler duration from schedule to completion, in milliseconds",
			Buckets:   []float64{10, 100, 1000, 10000, 60000, 300000},
		}, []string{"handler_step_id"}),

		suspensions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "workflow_engine",
			Name:      "suspensions_total",
			Help:      "Total runs that transitioned to SUSPENDED",
		}),

		resumes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "workflow_engine",
			Name:      "resumes_total",
			Help:      "Total successful Resume calls",
		}),
	}
}

// RecordAttempt implements RetryMetricsSink.
func (m *Metrics) RecordAttempt(stepID string) {
	if !m.isEnabled() {
		return
	}
	m.stepAttempts.WithLabelValues(stepID).Inc()

	m.countersMu.Lock()
	m.attempts[stepID]++
	m.countersMu.Unlock()
}

// RecordAttemptNumber records attempt as the attempt count an
// individual invocation reached (1 for a step that succeeded or
// failed on its first try, higher for a retried one). Called once per
// invocation loop iteration, separately from RecordAttempt's
// per-attempt tally, so MaxAttemptsObserved can report the worst case
// a step has needed rather than just how many times it's run.
func (m *Metrics) RecordAttemptNumber(stepID string, attempt int) {
	if !m.isEnabled() {
		return
	}
	m.countersMu.Lock()
	if attempt > m.maxAttempt[stepID] {
		m.maxAttempt[stepID] = attempt
	}
	observed := m.maxAttempt[stepID]
	m.countersMu.Unlock()
	m.maxAttempts.WithLabelValues(stepID).Set(float64(observed))
}

// RecordSuccess implements RetryMetricsSink.
func (m *Metrics) RecordSuccess(stepID string, duration time.Duration) {
	if !m.isEnabled() {
		return
	}
	m.stepLatency.WithLabelValues(stepID, "success").Observe(float64(duration.Milliseconds()))
	m.successesTotal.WithLabelValues(stepID).Inc()

	m.countersMu.Lock()
	m.successes[stepID]++
	m.countersMu.Unlock()
}

// SuccessRate returns stepID's successes divided by its attempts.
// defined is false when no attempts have been recorded for stepID,
// matching the convention that a rate with a zero denominator is
// undefined rather than zero.
func (m *Metrics) SuccessRate(stepID string) (rate float64, defined bool) {
	m.countersMu.Lock()
	defer m.countersMu.Unlock()
	attempts := m.attempts[stepID]
	if attempts == 0 {
		return 0, false
	}
	return float64(m.successes[stepID]) / float64(attempts), true
}

// MaxAttemptsObserved returns the highest attempt number recorded for
// stepID via RecordAttemptNumber, or 0 if none has been recorded.
func (m *Metrics) MaxAttemptsObserved(stepID string) int {
	m.countersMu.Lock()
	defer m.countersMu.Unlock()
	return m.maxAttempt[stepID]
}

// RecordFailure implements RetryMetricsSink.
func (m *Metrics) RecordFailure(stepID string, kind string) {
	if !m.isEnabled() {
		return
	}
	m.stepLatency.WithLabelValues(stepID, "error").Observe(0)
	m.retriesTotal.WithLabelValues(stepID, kind).Inc()
}

// RecordExhaustion implements RetryMetricsSink.
func (m *Metrics) RecordExhaustion(stepID string) {
	if !m.isEnabled() {
		return
	}
	m.retriesExhausted.WithLabelValues(stepID).Inc()
}

// RecordRetryDelay implements RetryMetricsSink.
func (m *Metrics) RecordRetryDelay(stepID string, d time.Duration) {
	if !m.isEnabled() {
		return
	}
	m.retryDelayMs.WithLabelValues(stepID).Observe(float64(d.Milliseconds()))
}

// AsyncStarted records a handler entering the inflight gauge.
func (m *Metrics) AsyncStarted() {
	if !m.isEnabled() {
		return
	}
	m.asyncInflight.Inc()
}

// AsyncFinished records a handler leaving the inflight gauge and its
// total duration.
func (m *Metrics) AsyncFinished(handlerStepID string, duration time.Duration) {
	if !m.isEnabled() {
		return
	}
	m.asyncInflight.Dec()
	m.asyncDuration.WithLabelValues(handlerStepID).Observe(float64(duration.Milliseconds()))
}

// RecordSuspension increments the suspensions counter.
func (m *Metrics) RecordSuspension() {
	if !m.isEnabled() {
		return
	}
	m.suspensions.Inc()
}

// RecordResume increments the resumes counter.
func (m *Metrics) RecordResume() {
	if !m.isEnabled() {
		return
	}
	m.resumes.Inc()
}

func (m *Metrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Disable stops metric recording (for tests that don't want Prometheus
// registry collisions across cases).
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable re-enables metric recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

// Reset zeroes gauge-type metrics and the in-memory counters backing
// SuccessRate/MaxAttemptsObserved, for tests that want a clean slate
// between cases sharing one Metrics instance. Counters and histograms
// are cumulative by design in Prometheus and cannot be reset in place;
// this leaves them untouched.
func (m *Metrics) Reset() {
	m.asyncInflight.Set(0)
	m.maxAttempts.Reset()

	m.countersMu.Lock()
	defer m.countersMu.Unlock()
	m.attempts = make(map[string]int64)
	m.successes = make(map[string]int64)
	m.maxAttempt = make(map[string]int)
}
