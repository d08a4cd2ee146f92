package dispatch

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// queueDepth is only written by the owning worker goroutine.
var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onion",
			Subsystem: "dispatch",
			Name:      "submissions_total",
			Help:      "Jobs successfully accepted for execution.",
		},
		[]string{"shard"},
	)

	queueFullTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onion",
			Subsystem: "dispatch",
			Name:      "queue_full_total",
			Help:      "Enqueue attempts that timed out (per-shard queue full).",
		},
		[]string{"shard"},
	)

	failuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onion",
			Subsystem: "dispatch",
			Name:      "job_failures_total",
			Help:      "Jobs that failed after all retries or irrecoverably.",
		},
		[]string{"shard"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "onion",
			Subsystem: "dispatch",
			Name:      "run_duration_seconds",
			Help:      "Job execution latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"shard"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "onion",
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Current depth of each shard queue.",
		},
		[]string{"shard"},
	)
)

func labelFor(i int) string { return strconv.Itoa(i) }
