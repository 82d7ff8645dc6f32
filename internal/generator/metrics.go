package generator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts generation calls.
	// Labels: provider (ollama, openai), op (complete, complete_json), status (success, error)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "complyd",
			Subsystem: "generator",
			Name:      "requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"provider", "op", "status"},
	)

	// RequestDuration tracks generation latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "complyd",
			Subsystem: "generator",
			Name:      "request_duration_seconds",
			Help:      "Duration of generation requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	// CacheHits counts responses served from the response cache.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "complyd",
			Subsystem: "generator",
			Name:      "cache_hits_total",
			Help:      "Total number of generation responses served from cache",
		},
	)
)

func observe(provider, op string, start time.Time, err error) {
	RequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	RequestsTotal.WithLabelValues(provider, op, status).Inc()
}
