// Package metrics provides prometheus instrumentation for dilution sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for session evaluations.
// All methods are safe on a nil receiver.
type Metrics struct {
	// Evaluations by robot and outcome ("ok", "invalid")
	Evaluations *prometheus.CounterVec

	// Transfers produced by robot and split type
	Transfers *prometheus.CounterVec

	// Validation entries by robot and severity
	ValidationIssues *prometheus.CounterVec

	// Batches produced by robot
	Batches *prometheus.CounterVec

	// Robots disagreeing on update information
	ConsistencyFailures prometheus.Counter

	// Wall time of one full evaluation across all robots
	EvaluateLatency prometheus.Histogram
}

// New creates a Metrics instance registered with reg.
// Pass prometheus.NewRegistry() in tests to avoid global registration clashes.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dilution_evaluations_total",
			Help: "Total robot evaluations by robot and outcome",
		}, []string{"robot", "outcome"}),

		Transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dilution_transfers_total",
			Help: "Transfers produced by robot and split type",
		}, []string{"robot", "split"}),

		ValidationIssues: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dilution_validation_issues_total",
			Help: "Validation entries by robot and severity",
		}, []string{"robot", "severity"}),

		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dilution_batches_total",
			Help: "Transfer batches produced by robot",
		}, []string{"robot"}),

		ConsistencyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dilution_robot_consistency_failures_total",
			Help: "Times configured robots disagreed on update information",
		}),

		EvaluateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dilution_evaluate_duration_seconds",
			Help:    "Duration of a full session evaluation",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// IncrementEvaluation records one robot evaluation outcome.
func (m *Metrics) IncrementEvaluation(robot, outcome string) {
	if m != nil {
		m.Evaluations.WithLabelValues(robot, outcome).Inc()
	}
}

// AddTransfers records n transfers of the given split type.
func (m *Metrics) AddTransfers(robot, split string, n int) {
	if m != nil && n > 0 {
		m.Transfers.WithLabelValues(robot, split).Add(float64(n))
	}
}

// AddValidationIssues records n validation entries of the given severity.
func (m *Metrics) AddValidationIssues(robot, severity string, n int) {
	if m != nil && n > 0 {
		m.ValidationIssues.WithLabelValues(robot, severity).Add(float64(n))
	}
}

// AddBatches records n batches produced for robot.
func (m *Metrics) AddBatches(robot string, n int) {
	if m != nil && n > 0 {
		m.Batches.WithLabelValues(robot).Add(float64(n))
	}
}

// IncrementConsistencyFailure records a cross-robot disagreement.
func (m *Metrics) IncrementConsistencyFailure() {
	if m != nil {
		m.ConsistencyFailures.Inc()
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}
