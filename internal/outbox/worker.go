// Package outbox re-delivers aggregation tasks that were not applied by the
// in-process dispatch, giving at-least-once profile updates.
package outbox

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/store"
)

var leasedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "onion",
	Subsystem: "outbox",
	Name:      "leased_total",
	Help:      "Pending aggregation tasks leased for redelivery.",
})

// Scheduler accepts a task for background processing.
type Scheduler interface {
	Schedule(ctx context.Context, task *model.AggregationTask) error
}

// Config controls batch size and polling cadence.
type Config struct {
	BatchSize int           // number of rows to lease per cycle
	Interval  time.Duration // poll interval
	Lease     time.Duration // how long a leased row stays invisible to other workers
}

// Worker polls the outbox for ready rows and hands them to the scheduler.
type Worker struct {
	store     store.Store
	scheduler Scheduler
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewWorker constructs a Worker from dependencies.
func NewWorker(st store.Store, sched Scheduler, cfg Config, log zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	return &Worker{store: st, scheduler: sched, cfg: cfg, log: log.With().Str("component", "outbox").Logger(), now: time.Now}
}

// Run starts the polling loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("batch", w.cfg.BatchSize).Dur("interval", w.cfg.Interval).Msg("outbox worker starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("outbox worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				// per-row backoff prevents hot-looping
				w.log.Error().Err(err).Msg("outbox processOnce")
			}
		}
	}
}

// ProcessOnce leases one batch of ready rows and schedules them. It returns
// the number of rows scheduled.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	tasks, err := w.store.Outbox().LeaseReady(ctx, w.now(), w.cfg.BatchSize, w.cfg.Lease)
	if err != nil {
		return 0, err
	}
	leasedTotal.Add(float64(len(tasks)))

	scheduled := 0
	for _, t := range tasks {
		if err := w.scheduler.Schedule(ctx, t); err != nil {
			// the lease expires and the row is retried on a later cycle
			w.log.Warn().Err(err).Str("task_id", t.TaskID).Msg("schedule leased task")
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		w.log.Debug().Int("scheduled", scheduled).Msg("outbox batch scheduled")
	}
	return scheduled, nil
}
