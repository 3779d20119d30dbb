package usefetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Execution outcomes recorded by Metrics.
const (
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeCancelled = "cancelled"
	outcomeNoURL     = "no_url"
)

// Metrics records Hook executions in Prometheus. It is safe for concurrent
// use; a nil *Metrics records nothing.
type Metrics struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	inFlight          prometheus.Gauge
}

// NewMetrics creates the collectors on the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates the collectors on the supplied registerer.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		executionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "usefetch_executions_total",
				Help: "Total number of hook executions by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		executionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usefetch_execution_duration_seconds",
				Help:    "Duration of hook executions that reached the network",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "outcome"},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "usefetch_in_flight",
				Help: "Number of hook executions currently waiting on the network",
			},
		),
	}
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) finished(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.executionsTotal.WithLabelValues(method, outcome).Inc()
	m.executionDuration.WithLabelValues(method, outcome).Observe(d.Seconds())
}

func (m *Metrics) skipped(method string) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(method, outcomeNoURL).Inc()
}
