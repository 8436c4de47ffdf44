package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilReceiver_NoPanic(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IncrementEvaluation("a", "ok")
		m.AddTransfers("a", "none", 3)
		m.AddValidationIssues("a", "error", 1)
		m.AddBatches("a", 2)
		m.IncrementConsistencyFailure()
		m.ObserveEvaluateLatency(time.Millisecond)
	})
}

func TestMetrics_RecordsByLabel(t *testing.T) {
	// GIVEN metrics on a private registry
	m := New(prometheus.NewRegistry())

	// WHEN several outcomes are recorded
	m.IncrementEvaluation("a", "ok")
	m.IncrementEvaluation("a", "ok")
	m.IncrementEvaluation("b", "invalid")
	m.AddTransfers("a", "row", 3)
	m.AddTransfers("a", "none", 0)
	m.AddValidationIssues("b", "warning", 2)
	m.AddBatches("a", 2)
	m.IncrementConsistencyFailure()
	m.ObserveEvaluateLatency(2 * time.Millisecond)

	// THEN counters carry the values under their labels
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("a", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("b", "invalid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Transfers.WithLabelValues("a", "row")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ValidationIssues.WithLabelValues("b", "warning")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Batches.WithLabelValues("a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsistencyFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EvaluateLatency))

	// AND zero additions create no series
	assert.Equal(t, 1, testutil.CollectAndCount(m.Transfers))
}

func TestNew_SeparateRegistries_NoClash(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
