// Package metrics holds the Prometheus collectors exported by reposcope.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "reposcope"

	// LabelStrategy names the clone mechanism of an attempt.
	LabelStrategy = "strategy"
	// LabelOutcome names the classified result of an operation.
	LabelOutcome = "outcome"
	// LabelOperation names the service operation being measured.
	LabelOperation = "operation"
)

// Metrics groups the collectors. Collectors are registered on the registry
// passed to New so that independent services never share state.
type Metrics struct {
	registry *prometheus.Registry

	CloneAttemptsTotal  *prometheus.CounterVec
	OperationsTotal     *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	AnalyzedFilesTotal  prometheus.Counter
	StreamedBytesTotal  prometheus.Counter
	ActiveRepositories  prometheus.Gauge
	RateLimitedRequests prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		CloneAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clone_attempts_total",
				Help:      "Clone attempts by strategy and classified outcome",
			},
			[]string{LabelStrategy, LabelOutcome},
		),
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Service operations by name and failure kind",
			},
			[]string{LabelOperation, LabelOutcome},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of service operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8), // 5ms to ~80s
			},
			[]string{LabelOperation},
		),
		AnalyzedFilesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyzed_files_total",
				Help:      "Files visited by the analyzer",
			},
		),
		StreamedBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streamed_bytes_total",
				Help:      "Bytes delivered by file streams",
			},
		),
		ActiveRepositories: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_repositories",
				Help:      "Repositories acquired and not yet cleaned up by this process",
			},
		),
		RateLimitedRequests: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "HTTP requests rejected by the rate limiter",
			},
		),
	}
}

// RecordCloneAttempt counts one clone attempt.
func (collectors *Metrics) RecordCloneAttempt(strategy string, outcome string) {
	if collectors == nil {
		return
	}
	collectors.CloneAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordOperation counts a finished service operation and observes its duration.
func (collectors *Metrics) RecordOperation(operation string, outcome string, seconds float64) {
	if collectors == nil {
		return
	}
	collectors.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	collectors.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// Registry exposes the underlying registry for gathering in tests.
func (collectors *Metrics) Registry() *prometheus.Registry {
	return collectors.registry
}

// Handler serves the registry in the Prometheus text format.
func (collectors *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(collectors.registry, promhttp.HandlerOpts{})
}
