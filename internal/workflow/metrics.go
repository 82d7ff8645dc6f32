package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished runs by final citation quality.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "complyd",
		Subsystem: "workflow",
		Name:      "runs_total",
		Help:      "Total number of completed workflow runs",
	}, []string{"quality"})

	// StageDuration tracks how long each stage takes.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "complyd",
		Subsystem: "workflow",
		Name:      "stage_duration_seconds",
		Help:      "Duration of workflow stages in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})

	// StageFailures counts stages that returned an error or panicked.
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "complyd",
		Subsystem: "workflow",
		Name:      "stage_failures_total",
		Help:      "Total number of failed workflow stages",
	}, []string{"stage"})

	// LoopsTotal counts routing decisions after validation.
	LoopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "complyd",
		Subsystem: "workflow",
		Name:      "loops_total",
		Help:      "Total number of routing decisions taken after validation",
	}, []string{"decision"})
)
