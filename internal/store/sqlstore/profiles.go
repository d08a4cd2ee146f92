package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onionlab/onion/internal/bigfive"
	"github.com/onionlab/onion/internal/model"
)

type profileRow struct {
	UserID       string    `db:"user_id"`
	BigFive      string    `db:"big5"`
	Version      int64     `db:"version"`
	LifeMapMonth string    `db:"life_map_month"`
	LifeMapCount int       `db:"life_map_count"`
	JoinedAt     time.Time `db:"joined_at"`
	LastUpdated  time.Time `db:"last_updated"`
}

type counterRow struct {
	Kind        string `db:"kind"`
	Label       string `db:"label"`
	Occurrences int    `db:"occurrences"`
}

type profiles struct {
	q sqlx.ExtContext
	d dialect
}

func (r *profiles) Ensure(ctx context.Context, userID string, now time.Time) (bool, error) {
	b, err := json.Marshal(bigfive.Default())
	if err != nil {
		return false, err
	}
	now = now.UTC()
	q := r.q.Rebind(`INSERT INTO profiles (user_id, big5, version, life_map_month, life_map_count, joined_at, last_updated)
VALUES (?, ?, 0, '', 0, ?, ?)
ON CONFLICT (user_id) DO NOTHING`)
	res, err := r.q.ExecContext(ctx, q, userID, string(b), now, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *profiles) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	var row profileRow
	q := r.q.Rebind(`SELECT user_id, big5, version, life_map_month, life_map_count, joined_at, last_updated
FROM profiles WHERE user_id = ?`)
	if err := sqlx.GetContext(ctx, r.q, &row, q, userID); err != nil {
		return nil, notFound(err)
	}
	p := &model.UserProfile{
		UserID:       row.UserID,
		Version:      row.Version,
		LifeMapUsage: model.LifeMapUsage{Month: row.LifeMapMonth, Count: row.LifeMapCount},
		JoinedAt:     row.JoinedAt.UTC(),
		LastUpdated:  row.LastUpdated.UTC(),
		TraitCounts:  map[string]int{},
		TagCounts:    map[string]int{},
	}
	if err := json.Unmarshal([]byte(row.BigFive), &p.BigFive); err != nil {
		return nil, fmt.Errorf("profile %s: decode big5: %w", userID, err)
	}

	var counters []counterRow
	cq := r.q.Rebind(`SELECT kind, label, occurrences FROM profile_counters WHERE user_id = ? AND occurrences > 0`)
	if err := sqlx.SelectContext(ctx, r.q, &counters, cq, userID); err != nil {
		return nil, err
	}
	for _, c := range counters {
		switch model.CounterKind(c.Kind) {
		case model.CounterTrait:
			p.TraitCounts[c.Label] = c.Occurrences
		case model.CounterTag:
			p.TagCounts[c.Label] = c.Occurrences
		}
	}
	return p, nil
}

func (r *profiles) AddCounts(ctx context.Context, userID string, kind model.CounterKind, keys []string) error {
	q := r.q.Rebind(`INSERT INTO profile_counters (user_id, kind, label, occurrences) VALUES (?, ?, ?, 1)
ON CONFLICT (user_id, kind, label) DO UPDATE SET occurrences = profile_counters.occurrences + 1`)
	for _, k := range keys {
		if _, err := r.q.ExecContext(ctx, q, userID, string(kind), k); err != nil {
			return fmt.Errorf("increment %s %q: %w", kind, k, err)
		}
	}
	return nil
}

func (r *profiles) SubtractCounts(ctx context.Context, userID string, kind model.CounterKind, keys []string) ([]string, error) {
	dec := r.q.Rebind(`UPDATE profile_counters SET occurrences = occurrences - 1
WHERE user_id = ? AND kind = ? AND label = ? AND occurrences > 0`)
	var missing []string
	for _, k := range keys {
		res, err := r.q.ExecContext(ctx, dec, userID, string(kind), k)
		if err != nil {
			return nil, fmt.Errorf("decrement %s %q: %w", kind, k, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			missing = append(missing, k)
		}
	}
	prune := r.q.Rebind(`DELETE FROM profile_counters WHERE user_id = ? AND kind = ? AND occurrences <= 0`)
	if _, err := r.q.ExecContext(ctx, prune, userID, string(kind)); err != nil {
		return nil, err
	}
	return missing, nil
}

func (r *profiles) TopKeys(ctx context.Context, userID string, kind model.CounterKind, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []string
	q := r.q.Rebind(`SELECT label FROM profile_counters WHERE user_id = ? AND kind = ? AND occurrences > 0
ORDER BY occurrences DESC, label ASC LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.q, &out, q, userID, string(kind), limit); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *profiles) CompareAndSwapBigFive(ctx context.Context, userID string, expected int64, scores bigfive.Scores, now time.Time) (bool, error) {
	b, err := json.Marshal(scores)
	if err != nil {
		return false, err
	}
	q := r.q.Rebind(`UPDATE profiles SET big5 = ?, version = version + 1, last_updated = ?
WHERE user_id = ? AND version = ?`)
	res, err := r.q.ExecContext(ctx, q, string(b), now.UTC(), userID, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *profiles) ReserveLifeMap(ctx context.Context, userID, month string, limit int, now time.Time) (model.LifeMapUsage, bool, error) {
	q := r.q.Rebind(`UPDATE profiles
SET life_map_count = CASE WHEN life_map_month = ? THEN life_map_count + 1 ELSE 1 END,
    life_map_month = ?,
    last_updated = ?
WHERE user_id = ? AND (life_map_month <> ? OR life_map_count < ?)`)
	res, err := r.q.ExecContext(ctx, q, month, month, now.UTC(), userID, month, limit)
	if err != nil {
		return model.LifeMapUsage{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.LifeMapUsage{}, false, err
	}
	usage, err := r.usage(ctx, userID)
	if err != nil {
		return model.LifeMapUsage{}, false, err
	}
	return usage, n == 1, nil
}

func (r *profiles) ReleaseLifeMap(ctx context.Context, userID, month string) error {
	q := r.q.Rebind(`UPDATE profiles SET life_map_count = life_map_count - 1
WHERE user_id = ? AND life_map_month = ? AND life_map_count > 0`)
	_, err := r.q.ExecContext(ctx, q, userID, month)
	return err
}

func (r *profiles) usage(ctx context.Context, userID string) (model.LifeMapUsage, error) {
	var row struct {
		Month string `db:"life_map_month"`
		Count int    `db:"life_map_count"`
	}
	q := r.q.Rebind(`SELECT life_map_month, life_map_count FROM profiles WHERE user_id = ?`)
	if err := sqlx.GetContext(ctx, r.q, &row, q, userID); err != nil {
		return model.LifeMapUsage{}, notFound(err)
	}
	return model.LifeMapUsage{Month: row.Month, Count: row.Count}, nil
}
