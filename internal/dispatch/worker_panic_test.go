package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPanicDoesNotStopShard(t *testing.T) {
	var lastErr atomic.Value
	ex := newTestExecutor(Config{
		Shards: 1, MaxAttempts: 3,
		ErrorHandler: func(_ string, err error) { lastErr.Store(err) },
	})
	defer ex.Stop()

	require.NoError(t, ex.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		panic("boom")
	})))

	var ran int32
	require.NoError(t, ex.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})))
	require.NoError(t, ex.Barrier(context.Background(), "k"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
	err, _ := lastErr.Load().(error)
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "boom", pe.Value)
}

func TestErrorHandlerPanicIsContained(t *testing.T) {
	ex := newTestExecutor(Config{
		Shards:       1,
		MaxAttempts:  1,
		ErrorHandler: func(string, error) { panic("handler") },
	})
	defer ex.Stop()

	require.NoError(t, ex.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		return errors.New("fail")
	})))
	require.NoError(t, ex.Barrier(context.Background(), "k"))
}

func TestCanceledJobSkipsRun(t *testing.T) {
	var handled atomic.Value
	ex := newTestExecutor(Config{
		Shards:       1,
		ErrorHandler: func(_ string, err error) { handled.Store(err) },
	})
	defer ex.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, ex.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		close(started)
		<-release
		return nil
	})))
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran int32
	require.NoError(t, ex.Submit(ctx, "k", JobFunc(func(context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})))
	cancel()
	close(release)
	require.NoError(t, ex.Barrier(context.Background(), "k"))

	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
	err, _ := handled.Load().(error)
	assert.ErrorIs(t, err, context.Canceled)
}
