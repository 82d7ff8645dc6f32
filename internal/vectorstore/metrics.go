package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks store call latency.
	// Labels: backend (chromem, qdrant), op (add, search, list, count, delete)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "complyd",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// OperationErrors counts failed store calls.
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "complyd",
			Subsystem: "vectorstore",
			Name:      "operation_errors_total",
			Help:      "Total number of failed vector store operations",
		},
		[]string{"backend", "op"},
	)
)

func observe(backend, op string, start time.Time, err error) {
	OperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	if err != nil {
		OperationErrors.WithLabelValues(backend, op).Inc()
	}
}
