package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingChecker_Check(t *testing.T) {
	var fail atomic.Bool
	pc := NewPingChecker("store", PingFunc(func(context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	}), zerolog.Nop(), time.Second)

	assert.False(t, pc.IsHealthy())
	assert.True(t, pc.Check(context.Background()))
	assert.True(t, pc.IsHealthy())

	fail.Store(true)
	assert.False(t, pc.Check(context.Background()))
	assert.False(t, pc.IsHealthy())
	assert.Equal(t, "store", pc.Name())
}

func TestPingChecker_CheckTimeout(t *testing.T) {
	pc := NewPingChecker("slow", PingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), zerolog.Nop(), 10*time.Millisecond)
	assert.False(t, pc.Check(context.Background()))
}

func TestServiceHealthChecker_Aggregates(t *testing.T) {
	var providerUp atomic.Bool
	store := NewPingChecker("store", PingFunc(func(context.Context) error { return nil }), zerolog.Nop(), time.Second)
	prov := NewPingChecker("provider", PingFunc(func(context.Context) error {
		if providerUp.Load() {
			return nil
		}
		return errors.New("no credentials")
	}), zerolog.Nop(), time.Second)

	svc := NewServiceHealthChecker(zerolog.Nop(), store, prov)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx, 5*time.Millisecond)

	require.Eventually(t, store.IsHealthy, time.Second, 5*time.Millisecond)
	assert.False(t, svc.IsHealthy())
	assert.Equal(t, map[string]bool{"store": true, "provider": false}, svc.Components())

	providerUp.Store(true)
	require.Eventually(t, svc.IsHealthy, time.Second, 5*time.Millisecond)
}

func TestServiceHealthChecker_DownBeforeFirstEvaluation(t *testing.T) {
	store := NewPingChecker("store", PingFunc(func(context.Context) error { return nil }), zerolog.Nop(), time.Second)
	svc := NewServiceHealthChecker(zerolog.Nop(), store)
	assert.False(t, svc.IsHealthy())
	assert.Equal(t, map[string]bool{"store": false}, svc.Components())
}
