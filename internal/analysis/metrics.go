package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// outcome label values
const (
	outcomeSuccess       = "success"
	outcomeRetry         = "retry"
	outcomeIrrecoverable = "irrecoverable"
	outcomeExhausted     = "exhausted"
)

var (
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onion",
			Subsystem: "analysis",
			Name:      "calls_total",
			Help:      "Provider calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "onion",
			Subsystem: "analysis",
			Name:      "call_duration_seconds",
			Help:      "Latency of a single provider call.",
			Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"operation"},
	)

	fileCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "onion",
			Subsystem: "analysis",
			Name:      "file_cleanup_failures_total",
			Help:      "Uploaded provider files that could not be deleted.",
		},
	)
)
