package profile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConflictsTotal counts personal-info values that contradicted stored ones.
	ConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "complyd",
			Subsystem: "profile",
			Name:      "conflicts_total",
			Help:      "Total number of personal-info conflicts detected while applying facts",
		},
	)

	// SaveErrors counts failed profile writes.
	SaveErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "complyd",
			Subsystem: "profile",
			Name:      "save_errors_total",
			Help:      "Total number of profile persistence failures",
		},
	)
)
