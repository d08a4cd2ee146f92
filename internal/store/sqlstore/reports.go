package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onionlab/onion/internal/model"
)

type reports struct {
	q sqlx.ExtContext
	d dialect
}

func (r *reports) Insert(ctx context.Context, rep *model.LifeReport) error {
	b, err := json.Marshal(rep.Result)
	if err != nil {
		return err
	}
	q := r.q.Rebind(`INSERT INTO life_reports (report_id, user_id, entry_count, result, created_at) VALUES (?, ?, ?, ?, ?)`)
	_, err = r.q.ExecContext(ctx, q, rep.ReportID, rep.UserID, rep.EntryCount, string(b), rep.CreatedAt.UTC())
	return err
}

func (r *reports) Latest(ctx context.Context, userID string) (*model.LifeReport, error) {
	var row struct {
		ReportID   string    `db:"report_id"`
		UserID     string    `db:"user_id"`
		EntryCount int       `db:"entry_count"`
		Result     string    `db:"result"`
		CreatedAt  time.Time `db:"created_at"`
	}
	q := r.q.Rebind(`SELECT report_id, user_id, entry_count, result, created_at FROM life_reports
WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`)
	if err := sqlx.GetContext(ctx, r.q, &row, q, userID); err != nil {
		return nil, notFound(err)
	}
	rep := &model.LifeReport{
		ReportID:   row.ReportID,
		UserID:     row.UserID,
		EntryCount: row.EntryCount,
		CreatedAt:  row.CreatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.Result), &rep.Result); err != nil {
		return nil, fmt.Errorf("report %s: decode result: %w", row.ReportID, err)
	}
	return rep, nil
}
