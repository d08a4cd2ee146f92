package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthPinger can be implemented by components to expose a specialized
// health check. HealthPing must return nil when the component is healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

// PingFunc adapts a function to HealthPinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) HealthPing(ctx context.Context) error { return f(ctx) }

// PingChecker monitors a HealthPinger with periodic pings.
type PingChecker struct {
	name         string
	target       HealthPinger
	healthy      atomic.Int32
	log          zerolog.Logger
	pingTimeout time.Duration
}

// NewPingChecker creates a checker that starts unhealthy until the first
// successful ping.
func NewPingChecker(name string, target HealthPinger, log zerolog.Logger, pingTimeout time.Duration) *PingChecker {
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}
	pc := &PingChecker{name: name, target: target, log: log, pingTimeout: pingTimeout}
	pc.healthy.Store(0)
	return pc
}

// Name returns the checker name.
func (pc *PingChecker) Name() string { return pc.name }

// IsHealthy returns the cached health status (non-blocking).
func (pc *PingChecker) IsHealthy() bool { return pc.healthy.Load() == 1 }

// Start begins periodic health checking.
func (pc *PingChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pc.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pc.Check(ctx)
		}
	}
}

// Check pings the target once and updates the cached status.
func (pc *PingChecker) Check(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, pc.pingTimeout)
	defer cancel()

	if err := pc.target.HealthPing(checkCtx); err != nil {
		pc.log.Error().Str("checker", pc.name).Err(err).Msg("health check failed")
		pc.healthy.Store(0)
		return false
	}
	pc.healthy.Store(1)
	return true
}
