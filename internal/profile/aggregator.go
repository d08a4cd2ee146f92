// Package profile folds finalized-entry signals into the per-user profile and
// serves the profile read view.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/onionlab/onion/internal/bigfive"
	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/store"
	"github.com/onionlab/onion/internal/tags"
)

var errCASConflict = errors.New("profile version changed concurrently")

// AggregatorConfig tunes the aggregator.
type AggregatorConfig struct {
	Alpha             float64
	OutboxMaxAttempts int           // attempts before a task is dead-lettered
	CASRetries        int           // extra transactions after a version conflict
	CASBackoff        time.Duration // initial wait between conflicting transactions
}

// Aggregator applies AggregationTasks. Each task is applied in one
// transaction that first claims the outbox row, so redelivery is harmless.
type Aggregator struct {
	store  store.Store
	cfg    AggregatorConfig
	traits *tags.Reconciler
	log    zerolog.Logger
	now    func() time.Time
}

// NewAggregator constructs an Aggregator.
func NewAggregator(st store.Store, cfg AggregatorConfig, log zerolog.Logger) *Aggregator {
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = bigfive.DefaultAlpha
	}
	if cfg.OutboxMaxAttempts <= 0 {
		cfg.OutboxMaxAttempts = 8
	}
	if cfg.CASRetries <= 0 {
		cfg.CASRetries = 5
	}
	if cfg.CASBackoff <= 0 {
		cfg.CASBackoff = 20 * time.Millisecond
	}
	l := log.With().Str("component", "aggregator").Logger()
	return &Aggregator{
		store:  st,
		cfg:    cfg,
		traits: tags.NewReconciler(model.CounterTrait, l),
		log:    l,
		now:    time.Now,
	}
}

// Apply folds task into the owner's profile. It reports false when the task
// had already been applied (or is unknown). It fails with store.ErrTaskBlocked
// while an older task for the same entry is pending.
func (a *Aggregator) Apply(ctx context.Context, task *model.AggregationTask) (bool, error) {
	var applied bool
	op := func() error {
		applied = false
		err := a.store.InTx(ctx, func(tx store.Repos) error {
			var err error
			applied, err = a.applyTx(ctx, tx, task)
			return err
		})
		if errors.Is(err, errCASConflict) {
			casConflictsTotal.Inc()
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = a.cfg.CASBackoff
	exp.MaxInterval = time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(a.cfg.CASRetries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return false, fmt.Errorf("apply task %s: %w", task.TaskID, err)
	}
	return applied, nil
}

func (a *Aggregator) applyTx(ctx context.Context, tx store.Repos, task *model.AggregationTask) (bool, error) {
	now := a.now()
	claimed, err := tx.Outbox().Claim(ctx, task.TaskID, now)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return false, nil
	}

	p, err := tx.Profiles().Get(ctx, task.UserID)
	if errors.Is(err, model.ErrNotFound) {
		if _, err = tx.Profiles().Ensure(ctx, task.UserID, now); err != nil {
			return false, fmt.Errorf("ensure profile: %w", err)
		}
		p, err = tx.Profiles().Get(ctx, task.UserID)
	}
	if err != nil {
		return false, fmt.Errorf("load profile: %w", err)
	}

	blended := bigfive.Blend(p.BigFive, task.BigFive, a.cfg.Alpha)
	ok, err := tx.Profiles().CompareAndSwapBigFive(ctx, task.UserID, p.Version, blended, now)
	if err != nil {
		return false, fmt.Errorf("write big five: %w", err)
	}
	if !ok {
		return false, errCASConflict
	}

	if _, err := a.traits.Reconcile(ctx, tx.Profiles(), task.UserID, task.PreviousKeywords, task.Keywords); err != nil {
		return false, fmt.Errorf("trait counts: %w", err)
	}
	return true, nil
}

// Process applies task and records any failure on its outbox row. The error
// is returned only when the failure itself could not be recorded.
func (a *Aggregator) Process(ctx context.Context, task *model.AggregationTask) error {
	log := a.log.With().Str("task_id", task.TaskID).Str("user_id", task.UserID).Logger()

	applied, err := a.Apply(ctx, task)
	if err == nil {
		if applied {
			appliedTotal.Inc()
			log.Debug().Msg("aggregation applied")
		} else {
			duplicatesTotal.Inc()
			log.Debug().Msg("aggregation already applied")
		}
		return nil
	}

	if errors.Is(err, store.ErrTaskBlocked) {
		// the outbox worker redelivers it once the older task is resolved
		deferredTotal.Inc()
		log.Debug().Str("diary_id", task.EntryID).Msg("aggregation deferred behind older task")
		return nil
	}

	failuresTotal.Inc()
	log.Error().Err(err).Msg("aggregation failed")

	dead, mErr := a.store.Outbox().MarkFailed(context.WithoutCancel(ctx), task.TaskID, err.Error(), a.now(), a.cfg.OutboxMaxAttempts)
	if mErr != nil {
		return fmt.Errorf("record failure for task %s: %w", task.TaskID, mErr)
	}
	if dead {
		deadLettersTotal.Inc()
		log.Error().Int("max_attempts", a.cfg.OutboxMaxAttempts).Msg("aggregation task dead-lettered")
	}
	return nil
}
