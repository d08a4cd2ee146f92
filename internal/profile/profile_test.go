package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onionlab/onion/internal/bigfive"
	"github.com/onionlab/onion/internal/dispatch"
	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/quota"
	"github.com/onionlab/onion/internal/store"
	"github.com/onionlab/onion/internal/store/sqlstore"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *sqlstore.SQLStore {
	t.Helper()
	s, err := sqlstore.Open(context.Background(), sqlstore.Options{Driver: sqlstore.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newAggregator(s store.Store) *Aggregator {
	a := NewAggregator(s, AggregatorConfig{Alpha: 0.2, OutboxMaxAttempts: 2}, zerolog.Nop())
	a.now = func() time.Time { return fixedNow }
	return a
}

func enqueue(t *testing.T, s store.Store, userID string, keywords, previous []string, scores bigfive.Scores) *model.AggregationTask {
	t.Helper()
	task := &model.AggregationTask{
		UserID: userID, EntryID: fmt.Sprintf("entry-%d", time.Now().UnixNano()),
		Keywords: keywords, PreviousKeywords: previous, BigFive: scores,
		NextAttemptAt: fixedNow, CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}
	require.NoError(t, s.Outbox().Enqueue(context.Background(), task))
	return task
}

func TestApply_BlendsAndCounts(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := newAggregator(s)

	task := enqueue(t, s, "u1", []string{"#calm", "#focus"}, nil, bigfive.Scores{"openness": {"imagination": 10}})
	applied, err := a.Apply(ctx, task)
	require.NoError(t, err)
	assert.True(t, applied)

	p, err := s.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 6.0, p.BigFive["openness"]["imagination"])
	assert.Equal(t, 5.0, p.BigFive["openness"]["intellect"])
	assert.Equal(t, map[string]int{"#calm": 1, "#focus": 1}, p.TraitCounts)
	assert.Equal(t, int64(1), p.Version)

	got, err := s.Outbox().Get(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskDone, got.Status)
}

func TestApply_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := newAggregator(s)

	task := enqueue(t, s, "u1", []string{"#calm"}, nil, bigfive.Scores{"neuroticism": {"anxiety": 0}})
	_, err := a.Apply(ctx, task)
	require.NoError(t, err)

	applied, err := a.Apply(ctx, task)
	require.NoError(t, err)
	assert.False(t, applied)

	p, err := s.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.TraitCounts["#calm"])
	assert.Equal(t, 4.0, p.BigFive["neuroticism"]["anxiety"])
}

func TestApply_KeywordAccumulation(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := newAggregator(s)

	sets := [][]string{{"#a", "#b"}, {"#a"}, {"#a", "#c"}}
	for _, kw := range sets {
		_, err := a.Apply(ctx, enqueue(t, s, "u1", kw, nil, nil))
		require.NoError(t, err)
	}

	p, err := s.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"#a": 3, "#b": 1, "#c": 1}, p.TraitCounts)
}

func TestApply_RefinalizeReplacesKeywords(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := newAggregator(s)

	_, err := a.Apply(ctx, enqueue(t, s, "u1", []string{"#a", "#b"}, nil, nil))
	require.NoError(t, err)
	_, err = a.Apply(ctx, enqueue(t, s, "u1", []string{"#a", "#c"}, []string{"#a", "#b"}, nil))
	require.NoError(t, err)

	p, err := s.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"#a": 1, "#c": 1}, p.TraitCounts)
}

func TestApply_RefinalizeTasksApplyInCreationOrder(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := newAggregator(s)

	first := &model.AggregationTask{
		UserID: "u1", EntryID: "entry-shared", Keywords: []string{"#a"},
		NextAttemptAt: fixedNow, CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}
	second := &model.AggregationTask{
		UserID: "u1", EntryID: "entry-shared", Keywords: []string{"#b"}, PreviousKeywords: []string{"#a"},
		NextAttemptAt: fixedNow, CreatedAt: fixedNow.Add(time.Second), UpdatedAt: fixedNow.Add(time.Second),
	}
	require.NoError(t, s.Outbox().Enqueue(ctx, first))
	require.NoError(t, s.Outbox().Enqueue(ctx, second))

	// the newer task arrives first and must wait
	_, err := a.Apply(ctx, second)
	require.ErrorIs(t, err, store.ErrTaskBlocked)
	require.NoError(t, a.Process(ctx, second))

	got, err := s.Outbox().Get(ctx, second.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, got.Status)
	assert.Equal(t, 0, got.Attempts)

	applied, err := a.Apply(ctx, first)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = a.Apply(ctx, second)
	require.NoError(t, err)
	assert.True(t, applied)

	p, err := s.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"#b": 1}, p.TraitCounts)
}

func TestApply_DeadOlderTaskUnblocksNewer(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := newAggregator(s)

	first := &model.AggregationTask{
		UserID: "u1", EntryID: "entry-shared", Keywords: []string{"#a"},
		NextAttemptAt: fixedNow, CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}
	second := &model.AggregationTask{
		UserID: "u1", EntryID: "entry-shared", Keywords: []string{"#b"}, PreviousKeywords: []string{"#a"},
		NextAttemptAt: fixedNow, CreatedAt: fixedNow.Add(time.Second), UpdatedAt: fixedNow.Add(time.Second),
	}
	require.NoError(t, s.Outbox().Enqueue(ctx, first))
	require.NoError(t, s.Outbox().Enqueue(ctx, second))

	dead, err := s.Outbox().MarkFailed(ctx, first.TaskID, "boom", fixedNow, 1)
	require.NoError(t, err)
	require.True(t, dead)

	applied, err := a.Apply(ctx, second)
	require.NoError(t, err)
	assert.True(t, applied)

	p, err := s.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"#b": 1}, p.TraitCounts)
}

func TestApply_EMAConverges(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := newAggregator(s)

	prev := bigfive.DefaultScore
	for i := 0; i < 20; i++ {
		_, err := a.Apply(ctx, enqueue(t, s, "u1", []string{"#x"}, nil, bigfive.Scores{"extraversion": {"cheerfulness": 9}}))
		require.NoError(t, err)
		p, err := s.Profiles().Get(ctx, "u1")
		require.NoError(t, err)
		cur := p.BigFive["extraversion"]["cheerfulness"]
		assert.GreaterOrEqual(t, cur, prev)
		assert.LessOrEqual(t, cur, 9.0)
		prev = cur
	}
	assert.InDelta(t, 9.0, prev, 0.1)
}

type failingStore struct {
	store.Store
}

func (f failingStore) InTx(context.Context, func(store.Repos) error) error {
	return errors.New("database is on fire")
}

func TestProcess_RecordsFailureAndDeadLetters(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := newAggregator(failingStore{s})

	task := enqueue(t, s, "u1", []string{"#a"}, nil, nil)

	require.NoError(t, a.Process(ctx, task))
	got, err := s.Outbox().Get(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.LastError, "database is on fire")
	assert.True(t, got.NextAttemptAt.After(fixedNow))

	require.NoError(t, a.Process(ctx, task))
	got, err = s.Outbox().Get(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskDead, got.Status)

	_, err = s.Profiles().Get(ctx, "u1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestScheduler_ConcurrentTasksForOneOwner(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := newAggregator(s)
	exec := dispatch.NewShardExecutor(dispatch.Config{Shards: 4, QueueSize: 64}, zerolog.Nop())
	defer exec.Stop()
	sched := NewScheduler(exec, a, zerolog.Nop())

	const n = 20
	tasks := make([]*model.AggregationTask, n)
	for i := range tasks {
		tasks[i] = enqueue(t, s, "owner", []string{"#shared", fmt.Sprintf("#k%d", i)}, nil, bigfive.Scores{"agreeableness": {"trust": 10}})
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task *model.AggregationTask) {
			defer wg.Done()
			assert.NoError(t, sched.Schedule(ctx, task))
		}(task)
	}
	wg.Wait()
	require.NoError(t, sched.Wait(ctx, "owner"))

	p, err := s.Profiles().Get(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, n, p.TraitCounts["#shared"])
	assert.Len(t, p.TraitCounts, n+1)
	assert.Equal(t, int64(n), p.Version)

	counts, err := s.Outbox().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, counts[model.TaskDone])
}

func TestService_GetUnknownUser(t *testing.T) {
	s := openStore(t)
	svc := NewService(s, quota.NewTracker(2))
	svc.now = func() time.Time { return fixedNow }

	v, err := svc.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, v.IsNew)
	assert.Equal(t, bigfive.DefaultScore, v.BigFive["openness"]["intellect"])
	assert.Equal(t, model.LifeMapUsage{Month: "2026-03"}, v.LifeMapUsage)
	assert.Equal(t, 2, v.LifeMapLimit)
	assert.Nil(t, v.JoinedAt)
	assert.Empty(t, v.TraitCounts)
}

func TestService_EnsureAndGet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	svc := NewService(s, quota.NewTracker(2))
	svc.now = func() time.Time { return fixedNow }

	v, created, err := svc.Ensure(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, v.IsNew)
	assert.Equal(t, 1, v.ServiceDays)

	_, created, err = svc.Ensure(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, s.Entries().Insert(ctx, &model.DiaryEntry{
		EntryID: "e1", UserID: "u1", Content: "x", EntryDate: "2026-03-14", Mood: "calm",
		CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}))

	svc.now = func() time.Time { return fixedNow.Add(48 * time.Hour) }
	v, err = svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, v.ServiceDays)
	assert.Equal(t, 1, v.MoodStats.Week["calm"])
	require.NotNil(t, v.JoinedAt)
	assert.True(t, v.JoinedAt.Equal(fixedNow))
}

func TestService_EmptyUser(t *testing.T) {
	svc := NewService(openStore(t), quota.NewTracker(2))
	_, err := svc.Get(context.Background(), "")
	assert.True(t, model.IsValidationError(err))
}

func TestServiceDays(t *testing.T) {
	joined := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, serviceDays(joined, joined))
	assert.Equal(t, 1, serviceDays(joined, time.Date(2026, 1, 2, 0, 30, 0, 0, time.UTC)), "midnight is not a completed day")
	assert.Equal(t, 2, serviceDays(joined, joined.Add(24*time.Hour)))
	assert.Equal(t, 2, serviceDays(joined, joined.Add(47*time.Hour+59*time.Minute)))
	assert.Equal(t, 3, serviceDays(joined, joined.Add(48*time.Hour)))
	assert.Equal(t, 1, serviceDays(joined, joined.Add(-72*time.Hour)))
}
