package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/store"
)

const entryColumns = `entry_id, user_id, title, content, entry_date, entry_time, mood, weather,
image_url, tags, analysis, is_temporary, created_at, updated_at`

type entryRow struct {
	EntryID     string         `db:"entry_id"`
	UserID      string         `db:"user_id"`
	Title       string         `db:"title"`
	Content     string         `db:"content"`
	EntryDate   string         `db:"entry_date"`
	EntryTime   string         `db:"entry_time"`
	Mood        string         `db:"mood"`
	Weather     string         `db:"weather"`
	ImageURL    string         `db:"image_url"`
	Tags        string         `db:"tags"`
	Analysis    sql.NullString `db:"analysis"`
	IsTemporary bool           `db:"is_temporary"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r entryRow) toModel() (*model.DiaryEntry, error) {
	e := &model.DiaryEntry{
		EntryID:     r.EntryID,
		UserID:      r.UserID,
		Title:       r.Title,
		Content:     r.Content,
		EntryDate:   r.EntryDate,
		EntryTime:   r.EntryTime,
		Mood:        r.Mood,
		Weather:     r.Weather,
		ImageURL:    r.ImageURL,
		IsTemporary: r.IsTemporary,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &e.Tags); err != nil {
			return nil, fmt.Errorf("entry %s: decode tags: %w", r.EntryID, err)
		}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if r.Analysis.Valid && r.Analysis.String != "" {
		var a model.EntryAnalysis
		if err := json.Unmarshal([]byte(r.Analysis.String), &a); err != nil {
			return nil, fmt.Errorf("entry %s: decode analysis: %w", r.EntryID, err)
		}
		e.Analysis = &a
	}
	return e, nil
}

func entryArgs(e *model.DiaryEntry) (tags string, analysis sql.NullString, err error) {
	t := e.Tags
	if t == nil {
		t = []string{}
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", analysis, err
	}
	if e.Analysis != nil {
		ab, err := json.Marshal(e.Analysis)
		if err != nil {
			return "", analysis, err
		}
		analysis = sql.NullString{String: string(ab), Valid: true}
	}
	return string(b), analysis, nil
}

type entries struct {
	q sqlx.ExtContext
	d dialect
}

func (r *entries) Get(ctx context.Context, userID, entryID string) (*model.DiaryEntry, error) {
	return r.get(ctx, userID, entryID, "")
}

func (r *entries) GetForUpdate(ctx context.Context, userID, entryID string) (*model.DiaryEntry, error) {
	return r.get(ctx, userID, entryID, r.d.forUpdate)
}

func (r *entries) get(ctx context.Context, userID, entryID, lock string) (*model.DiaryEntry, error) {
	var row entryRow
	q := r.q.Rebind(`SELECT ` + entryColumns + ` FROM diary_entries WHERE entry_id = ? AND user_id = ?` + lock)
	if err := sqlx.GetContext(ctx, r.q, &row, q, entryID, userID); err != nil {
		return nil, notFound(err)
	}
	return row.toModel()
}

func (r *entries) Insert(ctx context.Context, e *model.DiaryEntry) error {
	tags, analysis, err := entryArgs(e)
	if err != nil {
		return err
	}
	q := r.q.Rebind(`INSERT INTO diary_entries (` + entryColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.q.ExecContext(ctx, q,
		e.EntryID, e.UserID, e.Title, e.Content, e.EntryDate, e.EntryTime, e.Mood, e.Weather,
		e.ImageURL, tags, analysis, e.IsTemporary, e.CreatedAt.UTC(), e.UpdatedAt.UTC())
	return err
}

func (r *entries) Update(ctx context.Context, e *model.DiaryEntry) error {
	tags, analysis, err := entryArgs(e)
	if err != nil {
		return err
	}
	q := r.q.Rebind(`UPDATE diary_entries
SET title = ?, content = ?, entry_date = ?, entry_time = ?, mood = ?, weather = ?,
    image_url = ?, tags = ?, analysis = ?, is_temporary = ?, updated_at = ?
WHERE entry_id = ? AND user_id = ?`)
	res, err := r.q.ExecContext(ctx, q,
		e.Title, e.Content, e.EntryDate, e.EntryTime, e.Mood, e.Weather,
		e.ImageURL, tags, analysis, e.IsTemporary, e.UpdatedAt.UTC(),
		e.EntryID, e.UserID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *entries) Delete(ctx context.Context, userID, entryID string) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM diary_entries WHERE entry_id = ? AND user_id = ?`), entryID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *entries) List(ctx context.Context, userID string, opts store.ListOptions) ([]*model.DiaryEntry, error) {
	var (
		sb   strings.Builder
		args = []any{userID}
	)
	sb.WriteString(`SELECT ` + entryColumns + ` FROM diary_entries WHERE user_id = ?`)
	if opts.FinalOnly {
		sb.WriteString(` AND is_temporary = ?`)
		args = append(args, false)
	}
	if opts.Since != "" {
		sb.WriteString(` AND entry_date >= ?`)
		args = append(args, opts.Since)
	}
	// Newest first; Ascending reverses after the limit so the most recent
	// window is kept.
	sb.WriteString(` ORDER BY entry_date DESC, created_at DESC`)
	if opts.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	}

	var rows []entryRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(sb.String()), args...); err != nil {
		return nil, err
	}
	out := make([]*model.DiaryEntry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if opts.Ascending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (r *entries) CountFinal(ctx context.Context, userID string) (int, error) {
	var n int
	q := r.q.Rebind(`SELECT COUNT(*) FROM diary_entries WHERE user_id = ? AND is_temporary = ?`)
	if err := sqlx.GetContext(ctx, r.q, &n, q, userID, false); err != nil {
		return 0, err
	}
	return n, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
