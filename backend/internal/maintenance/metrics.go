package maintenance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runDuration measures a full maintenance pass.
	// Labels: status (ok, error, skipped)
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "warmintro",
		Subsystem: "maintenance",
		Name:      "run_duration_seconds",
		Help:      "Duration of maintenance passes in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"status"})

	// ownerResults counts per-owner outcomes within a pass.
	// Labels: status (ok, error)
	ownerResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warmintro",
		Subsystem: "maintenance",
		Name:      "owners_total",
		Help:      "Owners processed by maintenance passes",
	}, []string{"status"})

	// mergedPersons counts duplicates removed by sweeps.
	mergedPersons = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "warmintro",
		Subsystem: "maintenance",
		Name:      "merged_persons_total",
		Help:      "Duplicate Person nodes merged by maintenance sweeps",
	})

	// lastSuccess is the unix time of the last completed pass.
	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "warmintro",
		Subsystem: "maintenance",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last completed maintenance pass",
	})
)
