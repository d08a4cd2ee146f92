// Package lifemap builds the long-term report over a user's finalized entries.
package lifemap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/quota"
	"github.com/onionlab/onion/internal/store"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

const excerptRunes = 120

// Synthesizer is the long-form analysis surface.
type Synthesizer interface {
	SynthesizeLifeMap(ctx context.Context, timeline string, entryCount int) (*model.LifeMapResult, error)
}

// Config tunes the generator.
type Config struct {
	MinEntries         int // below this no report is generated
	TimelineMaxEntries int
}

// Request carries the optional generation parameters.
type Request struct {
	// PeriodMonths limits the timeline to the last N months; 0 uses everything.
	PeriodMonths int `json:"period_months" validate:"gte=0,lte=120"`
}

// Result is returned by Generate.
type Result struct {
	Status  string              `json:"status"`
	Message string              `json:"message,omitempty"`
	Report  *model.LifeReport   `json:"result,omitempty"`
	Usage   *model.LifeMapUsage `json:"usage,omitempty"`
}

// Generator produces and stores life-map reports.
type Generator struct {
	store store.Store
	synth Synthesizer
	quota *quota.Tracker
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(st store.Store, synth Synthesizer, q *quota.Tracker, cfg Config, log zerolog.Logger) *Generator {
	if cfg.MinEntries <= 0 {
		cfg.MinEntries = 3
	}
	if cfg.TimelineMaxEntries <= 0 {
		cfg.TimelineMaxEntries = 200
	}
	return &Generator{store: st, synth: synth, quota: q, cfg: cfg, log: log.With().Str("component", "lifemap").Logger(), now: time.Now}
}

// Generate builds a report. With too few entries it returns a "fail" result
// without touching the quota or the provider. A quota slot is reserved before
// the provider call and released if anything after it fails.
func (g *Generator) Generate(ctx context.Context, userID string, req Request) (*Result, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, model.NewValidationError("user_id", "must not be empty")
	}
	if req.PeriodMonths < 0 {
		return nil, model.NewValidationError("period_months", "must not be negative")
	}
	now := g.now().UTC()

	opts := store.ListOptions{FinalOnly: true, Ascending: true, Limit: g.cfg.TimelineMaxEntries}
	if req.PeriodMonths > 0 {
		opts.Since = now.AddDate(0, -req.PeriodMonths, 0).Format("2006-01-02")
	}
	entries, err := g.store.Entries().List(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if len(entries) < g.cfg.MinEntries {
		return &Result{
			Status:  StatusFail,
			Message: fmt.Sprintf("at least %d finalized entries are needed, found %d", g.cfg.MinEntries, len(entries)),
		}, nil
	}

	if _, err := g.store.Profiles().Ensure(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	usage, err := g.quota.Reserve(ctx, g.store.Profiles(), userID, now)
	if err != nil {
		return nil, err
	}

	report, err := g.generate(ctx, userID, entries, now)
	if err != nil {
		if rerr := g.quota.Release(context.WithoutCancel(ctx), g.store.Profiles(), userID, usage.Month); rerr != nil {
			g.log.Error().Err(rerr).Str("user_id", userID).Msg("release life map slot")
		}
		return nil, err
	}

	g.log.Info().Str("user_id", userID).Int("entries", len(entries)).Int("used", usage.Count).Msg("life map generated")
	return &Result{Status: StatusSuccess, Report: report, Usage: &usage}, nil
}

func (g *Generator) generate(ctx context.Context, userID string, entries []*model.DiaryEntry, now time.Time) (*model.LifeReport, error) {
	res, err := g.synth.SynthesizeLifeMap(ctx, Timeline(entries), len(entries))
	if err != nil {
		return nil, err
	}
	report := &model.LifeReport{
		ReportID:   uuid.NewString(),
		UserID:     userID,
		EntryCount: len(entries),
		Result:     *res,
		CreatedAt:  now,
	}
	if err := g.store.Reports().Insert(ctx, report); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	return report, nil
}

// Latest returns the most recent report.
func (g *Generator) Latest(ctx context.Context, userID string) (*model.LifeReport, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, model.NewValidationError("user_id", "must not be empty")
	}
	r, err := g.store.Reports().Latest(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.NewNotFoundError("life_map", userID)
	}
	return r, err
}

// Timeline renders entries oldest first, one line each.
func Timeline(entries []*model.DiaryEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(line(e))
		b.WriteByte('\n')
	}
	return b.String()
}

func line(e *model.DiaryEntry) string {
	var event, flow, belief, pattern string
	if a := e.Analysis; a != nil {
		event = a.EventSummary
		if event == "" {
			event = a.OneLiner
		}
		if a.Themes != nil {
			flow, belief, pattern = a.Themes.Theme1, a.Themes.Theme2, a.Themes.Theme4
		}
	}
	if event == "" {
		event = e.Content
	}
	return fmt.Sprintf("[%s] mood=%s | event: %s | flow: %s | belief: %s | pattern: %s",
		e.EntryDate, e.Mood, excerpt(event), excerpt(flow), excerpt(belief), excerpt(pattern))
}

// excerpt flattens whitespace and cuts s to excerptRunes runes.
func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= excerptRunes {
		return s
	}
	return string(r[:excerptRunes]) + "…"
}
