package outboxworker

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/onionlab/onion/internal/config"
	"github.com/onionlab/onion/internal/dispatch"
	"github.com/onionlab/onion/internal/logger"
	"github.com/onionlab/onion/internal/outbox"
	"github.com/onionlab/onion/internal/profile"
	"github.com/onionlab/onion/internal/store/sqlstore"
)

// Run starts the standalone outbox worker and blocks until shutdown or error.
// It redelivers aggregation tasks that the diary service did not apply.
func Run() error {
	log := logger.New("outbox-worker")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("config")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:      cfg.DBDriver,
		PostgresDSN: cfg.PostgresDSN,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.DBDriver).Msg("store open")
		return err
	}
	defer st.Close()

	dcfg, err := dispatch.LoadConfig()
	if err != nil {
		return err
	}
	exec := dispatch.NewShardExecutor(dcfg, log)
	defer exec.Stop()

	agg := profile.NewAggregator(st, profile.AggregatorConfig{
		Alpha:             cfg.BigFiveAlpha,
		OutboxMaxAttempts: cfg.OutboxMaxAttempts,
	}, log)

	w := outbox.NewWorker(st, profile.NewScheduler(exec, agg, log), outbox.Config{
		BatchSize: cfg.OutboxBatchSize,
		Interval:  cfg.OutboxInterval,
	}, log)

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("outbox worker exit")
		return err
	}
	return nil
}
