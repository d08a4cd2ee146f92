package profile

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/onionlab/onion/internal/dispatch"
	"github.com/onionlab/onion/internal/model"
)

// Scheduler hands aggregation tasks to the sharded executor keyed by owner,
// so tasks for one user run in submission order.
type Scheduler struct {
	exec *dispatch.ShardExecutor
	agg  *Aggregator
	log  zerolog.Logger
}

// NewScheduler wires an executor to an aggregator.
func NewScheduler(exec *dispatch.ShardExecutor, agg *Aggregator, log zerolog.Logger) *Scheduler {
	return &Scheduler{exec: exec, agg: agg, log: log.With().Str("component", "scheduler").Logger()}
}

// Schedule submits task for background processing. The job is detached from
// the caller's cancellation. A submission failure leaves the task pending in
// the outbox for the recovery worker.
func (s *Scheduler) Schedule(ctx context.Context, task *model.AggregationTask) error {
	job := dispatch.JobFunc(func(jctx context.Context) error {
		return s.agg.Process(jctx, task)
	})
	if err := s.exec.Submit(context.WithoutCancel(ctx), task.UserID, job); err != nil {
		s.log.Warn().Err(err).Str("task_id", task.TaskID).Str("user_id", task.UserID).Msg("schedule failed, left for outbox recovery")
		return err
	}
	return nil
}

// Wait blocks until every task submitted so far for userID has run.
func (s *Scheduler) Wait(ctx context.Context, userID string) error {
	return s.exec.Barrier(ctx, userID)
}
