// Package dispatch provides a sharded work queue that guarantees FIFO order
// per key while allowing parallelism across shards. Profile aggregation uses
// it to serialise all writes for one user onto one worker.
//
// Callers must not invoke Submit concurrently for the same key when they
// depend on FIFO ordering.
package dispatch

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

type queuedJob struct {
	ctx context.Context
	key string
	job Job
}

// ShardExecutor executes Jobs on worker goroutines partitioned by a stable hash
// of the key (e.g. user ID).
type ShardExecutor struct {
	cfg    Config
	log    zerolog.Logger
	queues []chan queuedJob

	done   chan struct{} // closed in Stop()
	closed uint32        // 0 → running, 1 → closed

	wg sync.WaitGroup
}

// NewShardExecutor constructs the executor and starts its shard workers.
func NewShardExecutor(cfg Config, log zerolog.Logger) *ShardExecutor {
	cfg = cfg.withDefaults()
	p := &ShardExecutor{
		cfg:    cfg,
		log:    log.With().Str("component", "dispatch").Logger(),
		queues: make([]chan queuedJob, cfg.Shards),
		done:   make(chan struct{}),
	}
	for i := 0; i < cfg.Shards; i++ {
		ch := make(chan queuedJob, cfg.QueueSize)
		p.queues[i] = ch
		p.wg.Add(1)
		go p.runWorker(i, ch)
	}
	return p
}

// Submit enqueues job for the shard derived from key.
//
//   - Returns nil on success.
//   - Returns ErrExecutorClosed if the executor is stopped.
//   - Returns ErrQueueFull (wrapped in *QueueFullError) if the shard is full
//     after EnqueueTimeout elapses.
//   - Returns ctx.Err() if the caller-provided context is cancelled first.
func (p *ShardExecutor) Submit(ctx context.Context, key string, job Job) error {
	if atomic.LoadUint32(&p.closed) == 1 {
		return ErrExecutorClosed
	}
	select {
	case <-p.done:
		return ErrExecutorClosed
	default:
	}

	shard := p.shardFor(key)
	ch := p.queues[shard]

	timer := time.NewTimer(p.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case ch <- queuedJob{ctx: ctx, key: key, job: job}:
		submissionsTotal.WithLabelValues(labelFor(shard)).Inc()
		return nil
	case <-p.done:
		return ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		queueFullTotal.WithLabelValues(labelFor(shard)).Inc()
		return &QueueFullError{Shard: shard, Length: len(ch), Capacity: cap(ch)}
	}
}

// Barrier enqueues a no-op job on the shard for key and waits until it runs,
// ensuring all previously submitted jobs for that key have completed.
func (p *ShardExecutor) Barrier(ctx context.Context, key string) error {
	done := make(chan struct{})
	j := JobFunc(func(context.Context) error {
		close(done)
		return nil
	})
	if err := p.Submit(ctx, key, j); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Stop signals every worker to drain its queue, waits for them to terminate,
// and then returns. It is idempotent and safe for concurrent use.
func (p *ShardExecutor) Stop() {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return
	}
	p.log.Info().Int("shards", p.cfg.Shards).Msg("stopping executor, draining shards")
	close(p.done)
	p.wg.Wait()
	p.log.Info().Msg("executor stopped, all queues drained")
}

// Close lets ShardExecutor satisfy io.Closer.
func (p *ShardExecutor) Close() error {
	p.Stop()
	return nil
}

// ------------------------- internals -------------------------

func (p *ShardExecutor) runWorker(idx int, ch <-chan queuedJob) {
	defer p.wg.Done()
	label := labelFor(idx)

	for {
		select {
		case qj := <-ch:
			if qj.job != nil {
				p.execute(label, qj)
			}
			queueDepth.WithLabelValues(label).Set(float64(len(ch)))

		case <-p.done:
			remaining := len(ch)
			if remaining > 0 {
				p.log.Info().Int("worker", idx).Int("remaining", remaining).Msg("draining remaining jobs")
			}
			for {
				select {
				case qj := <-ch:
					if qj.job == nil {
						continue
					}
					if err := runSafely(qj.ctx, qj.job); err != nil {
						p.fail(label, qj.key, err)
					}
				default:
					queueDepth.WithLabelValues(label).Set(0)
					return
				}
			}
		}
	}
}

// execute runs one job with retries. A cancelled job context skips the run.
func (p *ShardExecutor) execute(label string, qj queuedJob) {
	if err := qj.ctx.Err(); err != nil {
		p.fail(label, qj.key, err)
		return
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.cfg.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = p.cfg.MaxInterval
	exp.Reset()

	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := runSafely(qj.ctx, qj.job)
		runDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		if err == nil {
			return
		}
		if isIrrecoverable(err) || attempt >= p.cfg.MaxAttempts {
			p.fail(label, qj.key, err)
			return
		}

		p.log.Debug().Err(err).Str("key", qj.key).Int("attempt", attempt).Msg("job failed, retrying")
		wait := exp.NextBackOff()
		select {
		case <-time.After(wait):
		case <-p.done:
			p.fail(label, qj.key, err)
			return
		case <-qj.ctx.Done():
			p.fail(label, qj.key, qj.ctx.Err())
			return
		}
	}
}

// runSafely converts a panicking job into a *PanicError so the shard keeps
// serving its queue.
func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return job.Run(ctx)
}

func (p *ShardExecutor) fail(label, key string, err error) {
	failuresTotal.WithLabelValues(label).Inc()
	p.log.Warn().Err(err).Str("key", key).Msg("job failed")
	if p.cfg.ErrorHandler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("error handler panic")
		}
	}()
	p.cfg.ErrorHandler(key, err)
}

func (p *ShardExecutor) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.cfg.Shards))
}
