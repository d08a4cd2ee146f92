package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/store/sqlstore"
)

func openStore(t *testing.T) *sqlstore.SQLStore {
	t.Helper()
	s, err := sqlstore.Open(context.Background(), sqlstore.Options{Driver: sqlstore.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStatus_Rollover(t *testing.T) {
	tr := NewTracker(2)
	now := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, model.LifeMapUsage{Month: "2026-05", Count: 0}, tr.Status(model.LifeMapUsage{Month: "2026-04", Count: 2}, now))
	assert.Equal(t, model.LifeMapUsage{Month: "2026-05", Count: 1}, tr.Status(model.LifeMapUsage{Month: "2026-05", Count: 1}, now))
	assert.Equal(t, model.LifeMapUsage{Month: "2026-05"}, tr.Status(model.LifeMapUsage{}, now))
}

func TestReserve_LimitAndRollover(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	tr := NewTracker(2)
	april := time.Date(2026, 4, 30, 23, 0, 0, 0, time.UTC)
	may := time.Date(2026, 5, 1, 1, 0, 0, 0, time.UTC)

	_, err := s.Profiles().Ensure(ctx, "u1", april)
	require.NoError(t, err)

	u, err := tr.Reserve(ctx, s.Profiles(), "u1", april)
	require.NoError(t, err)
	assert.Equal(t, model.LifeMapUsage{Month: "2026-04", Count: 1}, u)
	_, err = tr.Reserve(ctx, s.Profiles(), "u1", april)
	require.NoError(t, err)

	_, err = tr.Reserve(ctx, s.Profiles(), "u1", april)
	qe, ok := model.AsQuotaExceeded(err)
	require.True(t, ok, "expected quota error, got %v", err)
	assert.Equal(t, model.QuotaExceededError{Count: 2, Limit: 2}, qe)

	// new month starts from zero
	u, err = tr.Reserve(ctx, s.Profiles(), "u1", may)
	require.NoError(t, err)
	assert.Equal(t, model.LifeMapUsage{Month: "2026-05", Count: 1}, u)
}

func TestRelease_ReturnsSlot(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	tr := NewTracker(1)
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	_, err := s.Profiles().Ensure(ctx, "u1", now)
	require.NoError(t, err)

	u, err := tr.Reserve(ctx, s.Profiles(), "u1", now)
	require.NoError(t, err)
	require.NoError(t, tr.Release(ctx, s.Profiles(), "u1", u.Month))

	p, err := s.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.LifeMapUsage.Count)

	_, err = tr.Reserve(ctx, s.Profiles(), "u1", now)
	require.NoError(t, err)
}

func TestReserve_ConcurrentNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	tr := NewTracker(2)
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	_, err := s.Profiles().Ensure(ctx, "u1", now)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tr.Reserve(ctx, s.Profiles(), "u1", now); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, granted)
}

func TestNewTracker_NegativeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NewTracker(-1).Limit())
	assert.Equal(t, 0, NewTracker(0).Limit())
}
