// Package quota enforces the monthly life-map allowance.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/store"
)

// MonthLayout formats the usage month token.
const MonthLayout = "2006-01"

// DefaultLimit is the number of life maps allowed per calendar month.
const DefaultLimit = 2

// Tracker reserves and releases monthly slots on a profile.
type Tracker struct {
	limit int
}

// NewTracker returns a Tracker. A negative limit falls back to DefaultLimit.
func NewTracker(limit int) *Tracker {
	if limit < 0 {
		limit = DefaultLimit
	}
	return &Tracker{limit: limit}
}

// Limit returns the monthly allowance.
func (t *Tracker) Limit() int { return t.limit }

// Month returns the UTC month token for now.
func Month(now time.Time) string { return now.UTC().Format(MonthLayout) }

// Status reports usage as of now; a stored month other than the current one reads as zero.
func (t *Tracker) Status(u model.LifeMapUsage, now time.Time) model.LifeMapUsage {
	m := Month(now)
	if u.Month != m {
		return model.LifeMapUsage{Month: m, Count: 0}
	}
	return u
}

// Reserve takes one slot for the current month or fails with
// model.QuotaExceededError. The profile must exist.
func (t *Tracker) Reserve(ctx context.Context, p store.Profiles, userID string, now time.Time) (model.LifeMapUsage, error) {
	m := Month(now)
	usage, ok, err := p.ReserveLifeMap(ctx, userID, m, t.limit, now)
	if err != nil {
		return model.LifeMapUsage{}, fmt.Errorf("reserve life map: %w", err)
	}
	usage = t.Status(usage, now)
	if !ok {
		return usage, model.QuotaExceededError{Count: usage.Count, Limit: t.limit}
	}
	return usage, nil
}

// Release gives back a slot taken by Reserve for month.
func (t *Tracker) Release(ctx context.Context, p store.Profiles, userID, month string) error {
	if err := p.ReleaseLifeMap(ctx, userID, month); err != nil {
		return fmt.Errorf("release life map: %w", err)
	}
	return nil
}
