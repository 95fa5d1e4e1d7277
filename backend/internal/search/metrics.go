package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// searchLatency measures end-to-end search time.
	// Labels: query_type, status (ok, empty, error)
	searchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "warmintro",
		Subsystem: "search",
		Name:      "latency_seconds",
		Help:      "Search latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"query_type", "status"})

	// intentSources counts which parser produced each intent.
	// Labels: parsed_by (llm, rules, cache)
	intentSources = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warmintro",
		Subsystem: "search",
		Name:      "intents_total",
		Help:      "Parsed search intents by parser",
	}, []string{"parsed_by"})
)
