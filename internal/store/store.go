package store

import (
	"context"
	"errors"
	"time"

	"github.com/onionlab/onion/internal/bigfive"
	"github.com/onionlab/onion/internal/model"
)

// ErrTaskBlocked is returned by Outbox.Claim while an older task for the same
// entry is still pending. The task stays pending and is retried later.
var ErrTaskBlocked = errors.New("older task for the same entry still pending")

// Store is the persistence boundary. All mutations that must be atomic go
// through InTx; the Repos embedded here run outside any transaction.
type Store interface {
	Repos
	// InTx runs fn in one database transaction. A non-nil error from fn
	// rolls everything back.
	InTx(ctx context.Context, fn func(tx Repos) error) error
	HealthPing(ctx context.Context) error
	Close() error
}

// Repos groups the sub-repositories.
type Repos interface {
	Entries() Entries
	Profiles() Profiles
	Reports() Reports
	Outbox() Outbox
	Musics() Musics
}

// ListOptions filters Entries.List.
type ListOptions struct {
	FinalOnly bool
	Ascending bool   // oldest first when true
	Since     string // inclusive YYYY-MM-DD lower bound; empty for all
	Limit     int    // 0 for no limit; with Ascending the newest Limit entries are returned oldest first
}

// Entries persists diary entries. Lookups are always scoped by owner; an
// entry owned by someone else is reported as model.ErrNotFound.
type Entries interface {
	Get(ctx context.Context, userID, entryID string) (*model.DiaryEntry, error)
	// GetForUpdate is Get plus a row lock where the backend supports one.
	GetForUpdate(ctx context.Context, userID, entryID string) (*model.DiaryEntry, error)
	Insert(ctx context.Context, e *model.DiaryEntry) error
	Update(ctx context.Context, e *model.DiaryEntry) error
	Delete(ctx context.Context, userID, entryID string) error
	List(ctx context.Context, userID string, opts ListOptions) ([]*model.DiaryEntry, error)
	CountFinal(ctx context.Context, userID string) (int, error)
}

// Profiles persists the per-user aggregate.
type Profiles interface {
	// Ensure creates a default profile when none exists and reports whether it did.
	Ensure(ctx context.Context, userID string, now time.Time) (bool, error)
	Get(ctx context.Context, userID string) (*model.UserProfile, error)

	AddCounts(ctx context.Context, userID string, kind model.CounterKind, keys []string) error
	SubtractCounts(ctx context.Context, userID string, kind model.CounterKind, keys []string) ([]string, error)
	// TopKeys returns up to limit labels ordered by count, highest first.
	TopKeys(ctx context.Context, userID string, kind model.CounterKind, limit int) ([]string, error)

	// CompareAndSwapBigFive writes scores only if the stored version still
	// equals expected, bumping the version. It reports whether it wrote.
	CompareAndSwapBigFive(ctx context.Context, userID string, expected int64, scores bigfive.Scores, now time.Time) (bool, error)

	// ReserveLifeMap atomically takes one slot for month if fewer than limit
	// are used (a different stored month counts as zero). It returns the
	// usage after the call and whether a slot was taken.
	ReserveLifeMap(ctx context.Context, userID, month string, limit int, now time.Time) (model.LifeMapUsage, bool, error)
	// ReleaseLifeMap returns a slot previously taken for month.
	ReleaseLifeMap(ctx context.Context, userID, month string) error
}

// Reports persists immutable life-map reports.
type Reports interface {
	Insert(ctx context.Context, r *model.LifeReport) error
	Latest(ctx context.Context, userID string) (*model.LifeReport, error)
}

// Musics persists the shared music catalogue.
type Musics interface {
	Insert(ctx context.Context, m *model.Music) error
	// List returns every track ordered by title.
	List(ctx context.Context) ([]*model.Music, error)
}

// Outbox persists aggregation tasks for at-least-once delivery.
type Outbox interface {
	Enqueue(ctx context.Context, t *model.AggregationTask) error
	Get(ctx context.Context, taskID string) (*model.AggregationTask, error)
	// Claim flips a pending task to done and reports whether this caller won.
	// Tasks of one entry are claimed in creation order: while an older one is
	// pending, Claim fails with ErrTaskBlocked.
	Claim(ctx context.Context, taskID string, now time.Time) (bool, error)
	// LeaseReady returns pending tasks due at now and pushes their next
	// attempt time forward by lease so concurrent workers skip them.
	LeaseReady(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*model.AggregationTask, error)
	// MarkFailed records a failed attempt with exponential delay; the task is
	// dead-lettered once maxAttempts is reached. It reports whether it did so.
	MarkFailed(ctx context.Context, taskID, cause string, now time.Time, maxAttempts int) (bool, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// RetryDelay is the wait before the attempt following the given number of
// prior attempts: 2^(attempts+1) seconds, capped at five minutes.
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 8 {
		return 300 * time.Second
	}
	d := time.Duration(1<<uint(attempts+1)) * time.Second
	if d > 300*time.Second {
		return 300 * time.Second
	}
	return d
}
