// Package health pings the store and the analysis provider and folds the
// results into the service health flag served by /api/health.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker reports the cached reachability of one backing dependency of
// the diary service: the SQL store or the analysis provider.
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ServiceHealthChecker backs GET /api/health. The service is up only while
// both the store ping and the analysis provider ping succeed; any failing
// dependency flips it down and is named in the DOWN log line.
type ServiceHealthChecker struct {
	healthy atomic.Int32
	deps    []HealthChecker
	log     zerolog.Logger
}

// NewServiceHealthChecker starts out down until Start has seen every
// dependency healthy once.
func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	h := &ServiceHealthChecker{deps: deps, log: log}
	h.healthy.Store(0)
	return h
}

// IsHealthy reports whether the store and provider were both reachable at
// the last evaluation.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

// Components reports the cached health of every dependency by name.
func (h *ServiceHealthChecker) Components() map[string]bool {
	out := make(map[string]bool, len(h.deps))
	for _, c := range h.deps {
		out[c.Name()] = c.IsHealthy()
	}
	return out
}

// Start runs every dependency checker and periodically re-evaluates the
// service flag until ctx is done.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	for _, c := range h.deps {
		go c.Start(ctx, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := int32(0)
	eval := func() {
		all := true
		for _, c := range h.deps {
			if !c.IsHealthy() {
				all = false
			}
		}
		if all {
			h.healthy.Store(1)
		} else {
			h.healthy.Store(0)
		}
		cur := h.healthy.Load()
		if cur != prev {
			if cur == 1 {
				h.log.Info().Msg("service health: UP")
			} else {
				h.log.Error().Interface("components", h.Components()).Msg("service health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}
