// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine-level collectors. Register one set per process.
type Metrics struct {
	Executions *prometheus.CounterVec
	Duration   prometheus.Histogram
	Truncated  prometheus.Counter
}

// New registers the collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sandbox_executions_total",
			Help: "Sandboxed executions by outcome. status is ok or the error kind.",
		}, []string{"status"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sandbox_execution_duration_seconds",
			Help:    "Wall-clock execution time including namespace construction.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		Truncated: factory.NewCounter(prometheus.CounterOpts{
			Name: "sandbox_output_truncations_total",
			Help: "Executions whose combined output hit the size cap.",
		}),
	}
}
