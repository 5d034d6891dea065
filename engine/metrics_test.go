package engine

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	require.NoError(t, (<-ch).Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	require.NoError(t, (<-ch).Write(m))
	return m.GetGauge().GetValue()
}

func TestMetricsRecordAttemptAndSuccess(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAttempt("step-a")
	m.RecordSuccess("step-a", 10*time.Millisecond)

	assert.Equal(t, float64(1), counterValue(t, m.stepAttempts.WithLabelValues("step-a")))
}

func TestMetricsDisableSuppressesRecording(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.Disable()

	m.RecordAttempt("step-a")
	assert.Equal(t, float64(0), counterValue(t, m.stepAttempts.WithLabelValues("step-a")))

	m.Enable()
	m.RecordAttempt("step-a")
	assert.Equal(t, float64(1), counterValue(t, m.stepAttempts.WithLabelValues("step-a")))
}

func TestMetricsRecordExhaustionAndSuspensionResume(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordExhaustion("step-a")
	m.RecordSuspension()
	m.RecordResume()

	assert.Equal(t, float64(1), counterValue(t, m.retriesExhausted.WithLabelValues("step-a")))
	assert.Equal(t, float64(1), counterValue(t, m.suspensions))
	assert.Equal(t, float64(1), counterValue(t, m.resumes))
}

func TestMetricsSuccessRateUndefinedWithNoAttempts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	rate, defined := m.SuccessRate("never-run")
	assert.False(t, defined)
	assert.Zero(t, rate)
}

func TestMetricsSuccessRateComputesRatio(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAttempt("step-a")
	m.RecordSuccess("step-a", time.Millisecond)
	m.RecordAttempt("step-a")
	m.RecordFailure("step-a", "boom")

	rate, defined := m.SuccessRate("step-a")
	require.True(t, defined)
	assert.InDelta(t, 0.5, rate, 0.0001)
	assert.Equal(t, float64(1), counterValue(t, m.successesTotal.WithLabelValues("step-a")))
}

func TestMetricsMaxAttemptsObservedTracksWorstCase(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAttemptNumber("step-a", 1)
	m.RecordAttemptNumber("step-a", 3)
	m.RecordAttemptNumber("step-a", 2)

	assert.Equal(t, 3, m.MaxAttemptsObserved("step-a"))
	assert.Equal(t, 0, m.MaxAttemptsObserved("untouched-step"))
}

func TestMetricsResetClearsGaugesAndDerivedCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAttempt("step-a")
	m.RecordSuccess("step-a", time.Millisecond)
	m.RecordAttemptNumber("step-a", 4)
	m.AsyncStarted()

	m.Reset()

	_, defined := m.SuccessRate("step-a")
	assert.False(t, defined)
	assert.Equal(t, 0, m.MaxAttemptsObserved("step-a"))
	assert.Equal(t, float64(0), gaugeValue(t, m.asyncInflight))

	// Cumulative counters are untouched by Reset.
	assert.Equal(t, float64(1), counterValue(t, m.stepAttempts.WithLabelValues("step-a")))
	assert.Equal(t, float64(1), counterValue(t, m.successesTotal.WithLabelValues("step-a")))
}

func TestMetricsDisableSuppressesAttemptNumberAndSuccessRate(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.Disable()

	m.RecordAttempt("step-a")
	m.RecordAttemptNumber("step-a", 2)
	m.RecordSuccess("step-a", time.Millisecond)

	_, defined := m.SuccessRate("step-a")
	assert.False(t, defined)
	assert.Equal(t, 0, m.MaxAttemptsObserved("step-a"))
}
