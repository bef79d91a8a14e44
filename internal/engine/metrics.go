package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/actionbus/internal/ir"
)

// Metrics holds the bus collectors.
//
// Action ids are deliberately not labels: hosts may register actions
// dynamically from hooks, which would make cardinality unbounded.
type Metrics struct {
	actionsCompleted *prometheus.CounterVec
	suspensions      prometheus.Counter
	circularCalls    prometheus.Counter
	rollbacks        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		actionsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "actionbus_actions_completed_total",
			Help: "Total number of completed actions by result status",
		}, []string{"status"}),
		suspensions: f.NewCounter(prometheus.CounterOpts{
			Name: "actionbus_suspensions_total",
			Help: "Total number of handler suspensions",
		}),
		circularCalls: f.NewCounter(prometheus.CounterOpts{
			Name: "actionbus_circular_calls_total",
			Help: "Total number of repeated completions with no retry budget left",
		}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "actionbus_rollbacks_total",
			Help: "Total number of rolled back actions by kind (failure or voluntary)",
		}, []string{"kind"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "actionbus_run_duration_seconds",
			Help:    "Duration of bus runs by outcome",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"outcome"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "actionbus_queue_depth",
			Help: "Number of tasks in the ready queue at the last iteration",
		}),
	}
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics returns the collectors registered with the default
// Prometheus registry. Created on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func (m *Metrics) completed(status ir.Status) {
	m.actionsCompleted.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) suspended() {
	m.suspensions.Inc()
}

func (m *Metrics) circular() {
	m.circularCalls.Inc()
}

func (m *Metrics) rolledBack(kind rollbackKind) {
	m.rollbacks.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) runFinished(seconds float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.runDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) depth(n int) {
	m.queueDepth.Set(float64(n))
}
