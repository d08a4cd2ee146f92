package profile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "aggregation_applied_total",
		Help:      "Aggregation tasks applied to a profile.",
	})

	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "aggregation_duplicates_total",
		Help:      "Aggregation deliveries skipped because the task was already applied.",
	})

	failuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "aggregation_failures_total",
		Help:      "Failed aggregation attempts.",
	})

	deadLettersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "aggregation_dead_letters_total",
		Help:      "Aggregation tasks that exhausted their attempts.",
	})

	deferredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "aggregation_deferred_total",
		Help:      "Deliveries left pending behind an older task for the same entry.",
	})

	casConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onion",
		Name:      "aggregation_cas_conflicts_total",
		Help:      "Big-Five compare-and-swap conflicts.",
	})
)
