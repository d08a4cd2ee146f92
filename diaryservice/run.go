package diaryservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/onionlab/onion/internal/analysis"
	"github.com/onionlab/onion/internal/api"
	"github.com/onionlab/onion/internal/config"
	"github.com/onionlab/onion/internal/diary"
	"github.com/onionlab/onion/internal/dispatch"
	"github.com/onionlab/onion/internal/health"
	"github.com/onionlab/onion/internal/lifemap"
	"github.com/onionlab/onion/internal/logger"
	"github.com/onionlab/onion/internal/music"
	"github.com/onionlab/onion/internal/outbox"
	"github.com/onionlab/onion/internal/profile"
	"github.com/onionlab/onion/internal/provider/gemini"
	"github.com/onionlab/onion/internal/quota"
	"github.com/onionlab/onion/internal/store/sqlstore"
)

// Run starts the diary service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("diary-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("gemini_model", cfg.GeminiModel).
		Msg("Diary service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	st, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:      cfg.DBDriver,
		PostgresDSN: cfg.PostgresDSN,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return err
	}
	defer st.Close()

	backend := gemini.New(gemini.Config{
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Timeout: cfg.ProviderTimeout,
	}, log)
	invoker, err := analysis.New(backend, analysis.Config{
		APIKeys:     cfg.GeminiAPIKeys,
		MaxAttempts: cfg.AnalysisMaxAttempts,
		RetryDelay:  cfg.AnalysisRetryDelay,
	}, log)
	if err != nil {
		log.Error().Err(err).Msg("Provider credentials missing")
		return err
	}

	dcfg, err := dispatch.LoadConfig()
	if err != nil {
		return err
	}
	exec := dispatch.NewShardExecutor(dcfg, log)
	defer exec.Close()

	aggregator := profile.NewAggregator(st, profile.AggregatorConfig{
		Alpha:             cfg.BigFiveAlpha,
		OutboxMaxAttempts: cfg.OutboxMaxAttempts,
	}, log)
	scheduler := profile.NewScheduler(exec, aggregator, log)
	tracker := quota.NewTracker(cfg.LifeMapMonthlyLimit)

	svcHealth := newHealthChecker(cfg, log, st, func(ctx context.Context) error {
		return backend.HealthPing(ctx, cfg.GeminiAPIKeys[0])
	})

	router := api.NewRouter(api.Deps{
		Diaries:  diary.NewManager(st, invoker, scheduler, diary.Config{RecoveryDelay: cfg.OutboxRecoveryDelay}, log),
		Profiles: profile.NewService(st, tracker),
		LifeMaps: lifemap.NewGenerator(st, invoker, tracker, lifemap.Config{
			MinEntries:         cfg.LifeMapMinEntries,
			TimelineMaxEntries: cfg.TimelineMaxEntries,
		}, log),
		Musics:  music.NewCatalog(st, log),
		Scanner: invoker,
		Health:  svcHealth,
	})
	server := newHTTPServer(ctx, cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		svcHealth.Start(gctx, time.Duration(cfg.HealthIntervalSeconds)*time.Second)
		return nil
	})
	if cfg.OutboxInProcess {
		worker := outbox.NewWorker(st, scheduler, outbox.Config{
			BatchSize: cfg.OutboxBatchSize,
			Interval:  cfg.OutboxInterval,
		}, log)
		g.Go(func() error {
			if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("outbox worker: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		// drain in-flight profile updates; the outbox covers anything left
		exec.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Stack().Err(err).Msg("Diary service failed")
		return err
	}
	log.Info().Msg("Server exited")
	return nil
}

// newHealthChecker binds the store and provider pings into one service flag.
func newHealthChecker(cfg *config.Config, log zerolog.Logger, st health.HealthPinger, providerPing health.PingFunc) *health.ServiceHealthChecker {
	pingTimeout := time.Duration(cfg.HealthPingTimeoutSeconds) * time.Second
	return health.NewServiceHealthChecker(log,
		health.NewPingChecker("store", st, log, pingTimeout),
		health.NewPingChecker("provider", providerPing, log, pingTimeout),
	)
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// analysis calls retry across keys and can take well over a minute
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
