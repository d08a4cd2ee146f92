package sqlstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/onionlab/onion/internal/model"
)

type musicRow struct {
	MusicID   string    `db:"music_id"`
	Title     string    `db:"title"`
	Artist    string    `db:"artist"`
	URL       string    `db:"url"`
	Category  string    `db:"category"`
	CreatedAt time.Time `db:"created_at"`
}

type musics struct {
	q sqlx.ExtContext
}

func (r *musics) Insert(ctx context.Context, m *model.Music) error {
	if m.MusicID == "" {
		m.MusicID = uuid.NewString()
	}
	q := r.q.Rebind(`INSERT INTO musics (music_id, title, artist, url, category, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.q.ExecContext(ctx, q, m.MusicID, m.Title, m.Artist, m.URL, m.Category, m.CreatedAt.UTC())
	return err
}

func (r *musics) List(ctx context.Context) ([]*model.Music, error) {
	var rows []musicRow
	q := `SELECT music_id, title, artist, url, category, created_at FROM musics ORDER BY title ASC, created_at ASC`
	if err := sqlx.SelectContext(ctx, r.q, &rows, q); err != nil {
		return nil, err
	}
	out := make([]*model.Music, 0, len(rows))
	for _, row := range rows {
		out = append(out, &model.Music{
			MusicID:   row.MusicID,
			Title:     row.Title,
			Artist:    row.Artist,
			URL:       row.URL,
			Category:  row.Category,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return out, nil
}
