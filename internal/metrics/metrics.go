package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Media broker metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "broker",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "media",
			Subsystem: "broker",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Object store operations counter
	ObjectStoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "broker",
			Name:      "object_store_operations_total",
			Help:      "Total signed object store requests",
		},
		[]string{"operation", "status"},
	)

	// Object store operation duration
	ObjectStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "media",
			Subsystem: "broker",
			Name:      "object_store_duration_seconds",
			Help:      "Object store request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	// STS exchanges
	STSRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "broker",
			Name:      "sts_requests_total",
			Help:      "Total AssumeRole exchanges",
		},
		[]string{"status"},
	)

	// Dedup outcomes: hit, miss, stale
	DedupOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "broker",
			Name:      "dedup_outcomes_total",
			Help:      "Fast-upload and tiny-fingerprint lookup outcomes",
		},
		[]string{"check", "outcome"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

// RecordObjectStoreOperation records a signed object store call
func RecordObjectStoreOperation(operation, status string, durationSec float64) {
	ObjectStoreOperationsTotal.WithLabelValues(operation, status).Inc()
	ObjectStoreDuration.WithLabelValues(operation).Observe(durationSec)
}

// RecordSTS records the outcome of an AssumeRole exchange
func RecordSTS(status string) {
	STSRequestsTotal.WithLabelValues(status).Inc()
}

// RecordDedup records a dedup lookup outcome
func RecordDedup(check, outcome string) {
	DedupOutcomesTotal.WithLabelValues(check, outcome).Inc()
}
