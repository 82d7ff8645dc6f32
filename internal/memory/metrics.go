package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts backend calls.
	// Labels: backend (local, remote), op (store, search, list, clear), status (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "complyd",
			Subsystem: "memory",
			Name:      "operations_total",
			Help:      "Total number of long-term memory operations",
		},
		[]string{"backend", "op", "status"},
	)

	// SearchDuration tracks recall latency.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "complyd",
			Subsystem: "memory",
			Name:      "search_duration_seconds",
			Help:      "Duration of long-term memory searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// SecretsRedacted counts secrets scrubbed before storage.
	SecretsRedacted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "complyd",
			Subsystem: "memory",
			Name:      "secrets_redacted_total",
			Help:      "Total number of secrets redacted from stored conversations",
		},
		[]string{"rule"},
	)
)

func recordOp(backend, op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(backend, op, status).Inc()
}
