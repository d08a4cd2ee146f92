// Package music manages the shared catalogue of background tracks offered
// while writing and reading entries. Audio is hosted elsewhere; only
// metadata is stored.
package music

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/store"
)

// Input describes a track to add.
type Input struct {
	Title    string
	Artist   string
	URL      string
	Category string
}

// Catalog adds and lists tracks.
type Catalog struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewCatalog(st store.Store, log zerolog.Logger) *Catalog {
	return &Catalog{store: st, log: log.With().Str("component", "music").Logger(), now: time.Now}
}

// Add stores a track. Title, artist and url are required; an empty category
// becomes model.DefaultMusicCategory.
func (c *Catalog) Add(ctx context.Context, in Input) (*model.Music, error) {
	m := &model.Music{
		Title:     strings.TrimSpace(in.Title),
		Artist:    strings.TrimSpace(in.Artist),
		URL:       strings.TrimSpace(in.URL),
		Category:  strings.TrimSpace(in.Category),
		CreatedAt: c.now().UTC(),
	}
	switch {
	case m.Title == "":
		return nil, model.NewValidationError("title", "must not be empty")
	case m.Artist == "":
		return nil, model.NewValidationError("artist", "must not be empty")
	case m.URL == "":
		return nil, model.NewValidationError("url", "must not be empty")
	}
	if m.Category == "" {
		m.Category = model.DefaultMusicCategory
	}
	if err := c.store.Musics().Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("insert music: %w", err)
	}
	c.log.Info().Str("music_id", m.MusicID).Str("category", m.Category).Msg("music added")
	return m, nil
}

// List returns the catalogue ordered by title.
func (c *Catalog) List(ctx context.Context) ([]*model.Music, error) {
	ms, err := c.store.Musics().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list musics: %w", err)
	}
	return ms, nil
}
