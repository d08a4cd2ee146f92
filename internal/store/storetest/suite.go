package storetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onionlab/onion/internal/bigfive"
	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/store"
)

var errRollback = errors.New("rollback")

// Run exercises the compliance suite against a store.Store implementation.
// makeStore must return a clean, isolated store.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("Entries", func(t *testing.T) { testEntries(t, makeStore(t)) })
	t.Run("Profiles", func(t *testing.T) { testProfiles(t, makeStore(t)) })
	t.Run("Counters", func(t *testing.T) { testCounters(t, makeStore(t)) })
	t.Run("LifeMapQuota", func(t *testing.T) { testLifeMapQuota(t, makeStore(t)) })
	t.Run("Reports", func(t *testing.T) { testReports(t, makeStore(t)) })
	t.Run("Outbox", func(t *testing.T) { testOutbox(t, makeStore(t)) })
	t.Run("OutboxEntryOrder", func(t *testing.T) { testOutboxEntryOrder(t, makeStore(t)) })
	t.Run("Musics", func(t *testing.T) { testMusics(t, makeStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, makeStore(t)) })
	t.Run("ConcurrentCounters", func(t *testing.T) { testConcurrentCounters(t, makeStore(t)) })
}

func newUser() string { return "u-" + uuid.NewString() }

func testEntries(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	now := time.Now().UTC().Truncate(time.Millisecond)

	draft := &model.DiaryEntry{
		EntryID: uuid.NewString(), UserID: userID, Content: "draft", EntryDate: "2024-03-01",
		Mood: "calm", Tags: []string{"calm"}, IsTemporary: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.Entries().Insert(ctx, draft); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := s.Entries().Get(ctx, userID, draft.EntryID)
	if err != nil || got.Content != "draft" || !got.IsTemporary || got.Analysis != nil {
		t.Fatalf("Get: got=%+v err=%v", got, err)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "calm" {
		t.Fatalf("Get tags: %v", got.Tags)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt round-trip: got %v want %v", got.CreatedAt, now)
	}

	// foreign owner sees nothing
	if _, err := s.Entries().Get(ctx, newUser(), draft.EntryID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get foreign owner: expected ErrNotFound, got %v", err)
	}

	final := *got
	final.IsTemporary = false
	final.Analysis = &model.EntryAnalysis{
		Themes:    &model.Themes{Theme1: "f", Theme2: "b", Theme3: "c", Theme4: "p", Theme5: "g"},
		Recommend: &model.Recommendation{Head: "h", Method1: &model.Method{Main: "m", Content: "c"}},
		OneLiner:  "one", Keywords: []string{"#calm"},
		BigFive: bigfive.Scores{"openness": {"intellect": 7}},
	}
	final.UpdatedAt = now.Add(time.Second)
	if err := s.Entries().Update(ctx, &final); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = s.Entries().GetForUpdate(ctx, userID, draft.EntryID)
	if err != nil || got.IsTemporary || got.Analysis == nil || got.Analysis.Themes.Theme1 != "f" {
		t.Fatalf("GetForUpdate after finalize: got=%+v err=%v", got, err)
	}

	second := &model.DiaryEntry{
		EntryID: uuid.NewString(), UserID: userID, Content: "older", EntryDate: "2024-02-01",
		IsTemporary: false, CreatedAt: now, UpdatedAt: now,
		Analysis: final.Analysis,
	}
	third := &model.DiaryEntry{
		EntryID: uuid.NewString(), UserID: userID, Content: "draft2", EntryDate: "2024-04-01",
		IsTemporary: true, CreatedAt: now, UpdatedAt: now,
	}
	for _, e := range []*model.DiaryEntry{second, third} {
		if err := s.Entries().Insert(ctx, e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	all, err := s.Entries().List(ctx, userID, store.ListOptions{})
	if err != nil || len(all) != 3 || all[0].EntryID != third.EntryID {
		t.Fatalf("List newest first: n=%d err=%v", len(all), err)
	}
	finals, err := s.Entries().List(ctx, userID, store.ListOptions{FinalOnly: true, Ascending: true})
	if err != nil || len(finals) != 2 || finals[0].EntryID != second.EntryID {
		t.Fatalf("List finals ascending: n=%d err=%v", len(finals), err)
	}
	recent, err := s.Entries().List(ctx, userID, store.ListOptions{FinalOnly: true, Ascending: true, Limit: 1})
	if err != nil || len(recent) != 1 || recent[0].EntryID != draft.EntryID {
		t.Fatalf("List limited window should keep the newest: %+v err=%v", recent, err)
	}
	since, err := s.Entries().List(ctx, userID, store.ListOptions{Since: "2024-03-01"})
	if err != nil || len(since) != 2 {
		t.Fatalf("List since: n=%d err=%v", len(since), err)
	}
	if n, err := s.Entries().CountFinal(ctx, userID); err != nil || n != 2 {
		t.Fatalf("CountFinal: n=%d err=%v", n, err)
	}

	if err := s.Entries().Delete(ctx, userID, second.EntryID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Entries().Delete(ctx, userID, second.EntryID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Delete twice: expected ErrNotFound, got %v", err)
	}
	ghost := &model.DiaryEntry{EntryID: uuid.NewString(), UserID: userID, UpdatedAt: now}
	if err := s.Entries().Update(ctx, ghost); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Update missing: expected ErrNotFound, got %v", err)
	}
}

func testProfiles(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	now := time.Now().UTC()

	if _, err := s.Profiles().Get(ctx, userID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get missing: expected ErrNotFound, got %v", err)
	}
	created, err := s.Profiles().Ensure(ctx, userID, now)
	if err != nil || !created {
		t.Fatalf("Ensure: created=%v err=%v", created, err)
	}
	created, err = s.Profiles().Ensure(ctx, userID, now)
	if err != nil || created {
		t.Fatalf("Ensure twice: created=%v err=%v", created, err)
	}
	p, err := s.Profiles().Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v, _ := p.BigFive.Get("neuroticism", "anxiety"); v != bigfive.DefaultScore {
		t.Fatalf("default big5: %v", v)
	}

	next := bigfive.Blend(p.BigFive, bigfive.Scores{"neuroticism": {"anxiety": 10}}, 0.2)
	ok, err := s.Profiles().CompareAndSwapBigFive(ctx, userID, p.Version, next, now)
	if err != nil || !ok {
		t.Fatalf("CAS: ok=%v err=%v", ok, err)
	}
	ok, err = s.Profiles().CompareAndSwapBigFive(ctx, userID, p.Version, next, now)
	if err != nil || ok {
		t.Fatalf("CAS stale version must fail: ok=%v err=%v", ok, err)
	}
	p2, err := s.Profiles().Get(ctx, userID)
	if err != nil || p2.Version != p.Version+1 {
		t.Fatalf("version bump: %+v err=%v", p2, err)
	}
	if v, _ := p2.BigFive.Get("neuroticism", "anxiety"); v != 6.0 {
		t.Fatalf("blended anxiety: %v", v)
	}
}

func testCounters(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	if _, err := s.Profiles().Ensure(ctx, userID, time.Now()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	pr := s.Profiles()

	if err := pr.AddCounts(ctx, userID, model.CounterTrait, []string{"#a", "#b"}); err != nil {
		t.Fatalf("AddCounts: %v", err)
	}
	if err := pr.AddCounts(ctx, userID, model.CounterTrait, []string{"#a"}); err != nil {
		t.Fatalf("AddCounts: %v", err)
	}
	if err := pr.AddCounts(ctx, userID, model.CounterTag, []string{"#a"}); err != nil {
		t.Fatalf("AddCounts tag: %v", err)
	}
	top, err := pr.TopKeys(ctx, userID, model.CounterTrait, 10)
	if err != nil || len(top) != 2 || top[0] != "#a" {
		t.Fatalf("TopKeys: %v err=%v", top, err)
	}

	missing, err := pr.SubtractCounts(ctx, userID, model.CounterTrait, []string{"#b", "#zzz"})
	if err != nil {
		t.Fatalf("SubtractCounts: %v", err)
	}
	if len(missing) != 1 || missing[0] != "#zzz" {
		t.Fatalf("missing: %v", missing)
	}
	p, err := pr.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.TraitCounts["#a"] != 2 || len(p.TraitCounts) != 1 {
		t.Fatalf("trait counts after subtract: %v", p.TraitCounts)
	}
	if p.TagCounts["#a"] != 1 {
		t.Fatalf("tag counts isolated by kind: %v", p.TagCounts)
	}
}

func testLifeMapQuota(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	now := time.Now().UTC()
	if _, err := s.Profiles().Ensure(ctx, userID, now); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	pr := s.Profiles()

	for i := 1; i <= 2; i++ {
		u, ok, err := pr.ReserveLifeMap(ctx, userID, "2024-05", 2, now)
		if err != nil || !ok || u.Count != i || u.Month != "2024-05" {
			t.Fatalf("Reserve #%d: usage=%+v ok=%v err=%v", i, u, ok, err)
		}
	}
	u, ok, err := pr.ReserveLifeMap(ctx, userID, "2024-05", 2, now)
	if err != nil || ok || u.Count != 2 {
		t.Fatalf("Reserve over limit: usage=%+v ok=%v err=%v", u, ok, err)
	}
	if err := pr.ReleaseLifeMap(ctx, userID, "2024-05"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok, _ := pr.ReserveLifeMap(ctx, userID, "2024-05", 2, now); !ok {
		t.Fatal("Reserve after release should succeed")
	}
	// rollover
	u, ok, err = pr.ReserveLifeMap(ctx, userID, "2024-06", 2, now)
	if err != nil || !ok || u.Count != 1 || u.Month != "2024-06" {
		t.Fatalf("Reserve new month: usage=%+v ok=%v err=%v", u, ok, err)
	}
	// release for a stale month is a no-op
	if err := pr.ReleaseLifeMap(ctx, userID, "2024-05"); err != nil {
		t.Fatalf("Release stale: %v", err)
	}
	p, _ := pr.Get(ctx, userID)
	if p.LifeMapUsage.Count != 1 {
		t.Fatalf("usage after stale release: %+v", p.LifeMapUsage)
	}
	if _, _, err := pr.ReserveLifeMap(ctx, newUser(), "2024-06", 2, now); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Reserve without profile: expected ErrNotFound, got %v", err)
	}
}

func testReports(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	if _, err := s.Reports().Latest(ctx, userID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Latest empty: expected ErrNotFound, got %v", err)
	}
	base := time.Now().UTC().Truncate(time.Second)
	for i, seasonality := range []string{"old", "new"} {
		r := &model.LifeReport{
			ReportID: uuid.NewString(), UserID: userID, EntryCount: 3 + i,
			Result:    model.LifeMapResult{DeepPatterns: model.TextList{"p"}, Seasonality: seasonality, LifeKeywords: model.TextList{"k"}},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Reports().Insert(ctx, r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	latest, err := s.Reports().Latest(ctx, userID)
	if err != nil || latest.Result.Seasonality != "new" || latest.EntryCount != 4 {
		t.Fatalf("Latest: %+v err=%v", latest, err)
	}
}

func testOutbox(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	ob := s.Outbox()

	task := &model.AggregationTask{
		UserID: newUser(), EntryID: uuid.NewString(), Keywords: []string{"#a"},
		PreviousKeywords: []string{"#old"}, BigFive: bigfive.Scores{"openness": {"intellect": 9}},
		NextAttemptAt: now.Add(-time.Second), CreatedAt: now, UpdatedAt: now,
	}
	if err := ob.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if task.TaskID == "" {
		t.Fatal("Enqueue should assign an id")
	}
	future := &model.AggregationTask{
		UserID: newUser(), EntryID: uuid.NewString(), Keywords: []string{"#b"},
		NextAttemptAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	}
	if err := ob.Enqueue(ctx, future); err != nil {
		t.Fatalf("Enqueue future: %v", err)
	}

	leased, err := ob.LeaseReady(ctx, now, 10, time.Minute)
	if err != nil || len(leased) != 1 || leased[0].TaskID != task.TaskID {
		t.Fatalf("LeaseReady: %+v err=%v", leased, err)
	}
	if leased[0].PreviousKeywords[0] != "#old" || leased[0].BigFive["openness"]["intellect"] != 9 {
		t.Fatalf("payload round-trip: %+v", leased[0])
	}
	again, err := ob.LeaseReady(ctx, now, 10, time.Minute)
	if err != nil || len(again) != 0 {
		t.Fatalf("leased task must not be re-leased within the lease: %+v err=%v", again, err)
	}

	dead, err := ob.MarkFailed(ctx, task.TaskID, "boom", now, 2)
	if err != nil || dead {
		t.Fatalf("MarkFailed #1: dead=%v err=%v", dead, err)
	}
	got, _ := ob.Get(ctx, task.TaskID)
	if got.Attempts != 1 || got.LastError != "boom" || !got.NextAttemptAt.After(now) {
		t.Fatalf("after MarkFailed: %+v", got)
	}
	dead, err = ob.MarkFailed(ctx, task.TaskID, "boom again", now, 2)
	if err != nil || !dead {
		t.Fatalf("MarkFailed #2 should dead-letter: dead=%v err=%v", dead, err)
	}
	if claimed, _ := ob.Claim(ctx, task.TaskID, now); claimed {
		t.Fatal("dead task must not be claimable")
	}

	claimed, err := ob.Claim(ctx, future.TaskID, now)
	if err != nil || !claimed {
		t.Fatalf("Claim: %v %v", claimed, err)
	}
	claimed, err = ob.Claim(ctx, future.TaskID, now)
	if err != nil || claimed {
		t.Fatalf("Claim twice: %v %v", claimed, err)
	}
	counts, err := ob.CountByStatus(ctx)
	if err != nil || counts[model.TaskDead] < 1 || counts[model.TaskDone] < 1 {
		t.Fatalf("CountByStatus: %v err=%v", counts, err)
	}
}

func testOutboxEntryOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	ob := s.Outbox()
	userID, entryID := newUser(), uuid.NewString()

	older := &model.AggregationTask{
		UserID: userID, EntryID: entryID, Keywords: []string{"#a"},
		NextAttemptAt: now, CreatedAt: now, UpdatedAt: now,
	}
	newer := &model.AggregationTask{
		UserID: userID, EntryID: entryID, Keywords: []string{"#b"}, PreviousKeywords: []string{"#a"},
		NextAttemptAt: now, CreatedAt: now.Add(time.Second), UpdatedAt: now.Add(time.Second),
	}
	other := &model.AggregationTask{
		UserID: userID, EntryID: uuid.NewString(), Keywords: []string{"#c"},
		NextAttemptAt: now, CreatedAt: now.Add(2 * time.Second), UpdatedAt: now,
	}
	for _, task := range []*model.AggregationTask{older, newer, other} {
		if err := ob.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	if claimed, err := ob.Claim(ctx, newer.TaskID, now); claimed || !errors.Is(err, store.ErrTaskBlocked) {
		t.Fatalf("newer task must wait for the older one: claimed=%v err=%v", claimed, err)
	}
	if claimed, err := ob.Claim(ctx, other.TaskID, now); err != nil || !claimed {
		t.Fatalf("other entries are not blocked: claimed=%v err=%v", claimed, err)
	}
	if claimed, err := ob.Claim(ctx, older.TaskID, now); err != nil || !claimed {
		t.Fatalf("Claim older: claimed=%v err=%v", claimed, err)
	}
	if claimed, err := ob.Claim(ctx, newer.TaskID, now); err != nil || !claimed {
		t.Fatalf("Claim newer after older: claimed=%v err=%v", claimed, err)
	}
	if claimed, err := ob.Claim(ctx, newer.TaskID, now); err != nil || claimed {
		t.Fatalf("done task is not blocked, just not claimable: claimed=%v err=%v", claimed, err)
	}
}

func testMusics(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	empty, err := s.Musics().List(ctx)
	if err != nil || len(empty) != 0 {
		t.Fatalf("List on empty catalogue: %+v err=%v", empty, err)
	}
	for i, title := range []string{"Zephyr", "Aurora", "Moss"} {
		m := &model.Music{Title: title, Artist: "artist", URL: "https://cdn.example/" + title, Category: "calm", CreatedAt: now.Add(time.Duration(i) * time.Second)}
		if err := s.Musics().Insert(ctx, m); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if m.MusicID == "" {
			t.Fatal("Insert should assign an id")
		}
	}
	got, err := s.Musics().List(ctx)
	if err != nil || len(got) != 3 {
		t.Fatalf("List: %+v err=%v", got, err)
	}
	if got[0].Title != "Aurora" || got[1].Title != "Moss" || got[2].Title != "Zephyr" {
		t.Fatalf("List must be ordered by title: %s, %s, %s", got[0].Title, got[1].Title, got[2].Title)
	}
	if got[0].URL != "https://cdn.example/Aurora" || got[0].Category != "calm" {
		t.Fatalf("round-trip: %+v", got[0])
	}
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	now := time.Now().UTC()
	err := s.InTx(ctx, func(tx store.Repos) error {
		if _, err := tx.Profiles().Ensure(ctx, userID, now); err != nil {
			return err
		}
		if err := tx.Profiles().AddCounts(ctx, userID, model.CounterTag, []string{"x"}); err != nil {
			return err
		}
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("InTx: expected rollback error, got %v", err)
	}
	if _, err := s.Profiles().Get(ctx, userID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("rolled back profile must not exist: %v", err)
	}

	err = s.InTx(ctx, func(tx store.Repos) error {
		_, err := tx.Profiles().Ensure(ctx, userID, now)
		return err
	})
	if err != nil {
		t.Fatalf("InTx commit: %v", err)
	}
	if _, err := s.Profiles().Get(ctx, userID); err != nil {
		t.Fatalf("committed profile: %v", err)
	}
}

func testConcurrentCounters(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	if _, err := s.Profiles().Ensure(ctx, userID, time.Now()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.InTx(ctx, func(tx store.Repos) error {
				return tx.Profiles().AddCounts(ctx, userID, model.CounterTrait, []string{"#shared"})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent AddCounts: %v", err)
		}
	}
	p, err := s.Profiles().Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.TraitCounts["#shared"] != n {
		keys := make([]string, 0, len(p.TraitCounts))
		for k := range p.TraitCounts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t.Fatalf("expected %d, got %d (%v)", n, p.TraitCounts["#shared"], keys)
	}
}
