package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/onionlab/onion/internal/bigfive"
	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/store"
)

const outboxColumns = `task_id, user_id, entry_id, payload, status, attempt_count, next_attempt_at, last_error, created_at, updated_at`

// taskPayload is the JSON stored in aggregation_outbox.payload.
type taskPayload struct {
	Keywords         []string       `json:"keywords"`
	PreviousKeywords []string       `json:"previous_keywords,omitempty"`
	BigFive          bigfive.Scores `json:"big5"`
}

type outboxRow struct {
	TaskID        string    `db:"task_id"`
	UserID        string    `db:"user_id"`
	EntryID       string    `db:"entry_id"`
	Payload       string    `db:"payload"`
	Status        string    `db:"status"`
	AttemptCount  int       `db:"attempt_count"`
	NextAttemptAt time.Time `db:"next_attempt_at"`
	LastError     string    `db:"last_error"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r outboxRow) toModel() (*model.AggregationTask, error) {
	var p taskPayload
	if err := json.Unmarshal([]byte(r.Payload), &p); err != nil {
		return nil, fmt.Errorf("task %s: bad payload: %w", r.TaskID, err)
	}
	return &model.AggregationTask{
		TaskID:           r.TaskID,
		UserID:           r.UserID,
		EntryID:          r.EntryID,
		Keywords:         p.Keywords,
		PreviousKeywords: p.PreviousKeywords,
		BigFive:          p.BigFive,
		Status:           r.Status,
		Attempts:         r.AttemptCount,
		NextAttemptAt:    r.NextAttemptAt.UTC(),
		LastError:        r.LastError,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}, nil
}

type outbox struct {
	q sqlx.ExtContext
	d dialect
}

func (r *outbox) Enqueue(ctx context.Context, t *model.AggregationTask) error {
	if t.TaskID == "" {
		t.TaskID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	b, err := json.Marshal(taskPayload{Keywords: t.Keywords, PreviousKeywords: t.PreviousKeywords, BigFive: t.BigFive})
	if err != nil {
		return err
	}
	q := r.q.Rebind(`INSERT INTO aggregation_outbox (` + outboxColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.q.ExecContext(ctx, q, t.TaskID, t.UserID, t.EntryID, string(b), t.Status, t.Attempts,
		t.NextAttemptAt.UTC(), t.LastError, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	return err
}

func (r *outbox) Get(ctx context.Context, taskID string) (*model.AggregationTask, error) {
	var row outboxRow
	q := r.q.Rebind(`SELECT ` + outboxColumns + ` FROM aggregation_outbox WHERE task_id = ?`)
	if err := sqlx.GetContext(ctx, r.q, &row, q, taskID); err != nil {
		return nil, notFound(err)
	}
	return row.toModel()
}

func (r *outbox) Claim(ctx context.Context, taskID string, now time.Time) (bool, error) {
	var older int
	bq := r.q.Rebind(`SELECT COUNT(*) FROM aggregation_outbox o
JOIN aggregation_outbox t ON o.entry_id = t.entry_id
WHERE t.task_id = ? AND t.status = ? AND o.status = ? AND o.task_id <> t.task_id
  AND (o.created_at < t.created_at OR (o.created_at = t.created_at AND o.task_id < t.task_id))`)
	if err := sqlx.GetContext(ctx, r.q, &older, bq, taskID, model.TaskPending, model.TaskPending); err != nil {
		return false, err
	}
	if older > 0 {
		return false, store.ErrTaskBlocked
	}

	q := r.q.Rebind(`UPDATE aggregation_outbox SET status = ?, updated_at = ? WHERE task_id = ? AND status = ?`)
	res, err := r.q.ExecContext(ctx, q, model.TaskDone, now.UTC(), taskID, model.TaskPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *outbox) LeaseReady(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*model.AggregationTask, error) {
	if limit <= 0 {
		limit = 50
	}
	now = now.UTC()
	q := r.q.Rebind(`UPDATE aggregation_outbox SET next_attempt_at = ?, updated_at = ?
WHERE task_id IN (
    SELECT task_id FROM aggregation_outbox
    WHERE status = ? AND next_attempt_at <= ?
    ORDER BY created_at ASC
    LIMIT ?` + r.d.skipLock + `
)
RETURNING ` + outboxColumns)
	var rows []outboxRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, q, now.Add(lease), now, model.TaskPending, now, limit); err != nil {
		return nil, err
	}
	out := make([]*model.AggregationTask, 0, len(rows))
	for _, row := range rows {
		t, err := row.toModel()
		if err != nil {
			// Poison pill: dead-letter it so it never hot-loops.
			_, _ = r.q.ExecContext(ctx, r.q.Rebind(`UPDATE aggregation_outbox SET status = ?, last_error = ?, updated_at = ? WHERE task_id = ?`),
				model.TaskDead, err.Error(), now, row.TaskID)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *outbox) MarkFailed(ctx context.Context, taskID, cause string, now time.Time, maxAttempts int) (bool, error) {
	var attempts int
	sel := r.q.Rebind(`SELECT attempt_count FROM aggregation_outbox WHERE task_id = ? AND status = ?`)
	if err := sqlx.GetContext(ctx, r.q, &attempts, sel, taskID, model.TaskPending); err != nil {
		if errors.Is(notFound(err), model.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	status := model.TaskPending
	if maxAttempts > 0 && attempts+1 >= maxAttempts {
		status = model.TaskDead
	}
	now = now.UTC()
	upd := r.q.Rebind(`UPDATE aggregation_outbox
SET attempt_count = attempt_count + 1, status = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
WHERE task_id = ? AND attempt_count = ? AND status = ?`)
	res, err := r.q.ExecContext(ctx, upd, status, truncate(cause, 1000), now.Add(store.RetryDelay(attempts)), now,
		taskID, attempts, model.TaskPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1 && status == model.TaskDead, nil
}

func (r *outbox) CountByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT status, COUNT(*) AS n FROM aggregation_outbox GROUP BY status`); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
