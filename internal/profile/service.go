package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onionlab/onion/internal/bigfive"
	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/quota"
	"github.com/onionlab/onion/internal/stats"
	"github.com/onionlab/onion/internal/store"
)

// View is the profile read model returned to clients.
type View struct {
	UserID       string             `json:"user_id"`
	IsNew        bool               `json:"is_new"`
	BigFive      bigfive.Scores     `json:"big5"`
	TraitCounts  map[string]int     `json:"trait_counts"`
	TagCounts    map[string]int     `json:"tag_counts"`
	MoodStats    stats.Windows      `json:"mood_stats"`
	LifeMapUsage model.LifeMapUsage `json:"life_map_usage"`
	LifeMapLimit int                `json:"life_map_limit"`
	ServiceDays  int                `json:"service_days"`
	JoinedAt     *time.Time         `json:"joined_at,omitempty"`
	Version      int64              `json:"version"`
}

// Service serves profile reads and explicit creation.
type Service struct {
	store store.Store
	quota *quota.Tracker
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(st store.Store, q *quota.Tracker) *Service {
	return &Service{store: st, quota: q, now: time.Now}
}

// Ensure creates the profile if absent and returns its view. The boolean
// reports whether it was created.
func (s *Service) Ensure(ctx context.Context, userID string) (*View, bool, error) {
	if userID == "" {
		return nil, false, model.NewValidationError("user_id", "must not be empty")
	}
	created, err := s.store.Profiles().Ensure(ctx, userID, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("ensure profile: %w", err)
	}
	v, err := s.Get(ctx, userID)
	return v, created, err
}

// Get assembles the view. An unknown user yields defaults with IsNew set.
func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	if userID == "" {
		return nil, model.NewValidationError("user_id", "must not be empty")
	}
	now := s.now()

	p, err := s.store.Profiles().Get(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return &View{
			UserID:       userID,
			IsNew:        true,
			BigFive:      bigfive.Default(),
			TraitCounts:  map[string]int{},
			TagCounts:    map[string]int{},
			MoodStats:    stats.Empty(),
			LifeMapUsage: s.quota.Status(model.LifeMapUsage{}, now),
			LifeMapLimit: s.quota.Limit(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	entries, err := s.store.Entries().List(ctx, userID, store.ListOptions{FinalOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	joined := p.JoinedAt
	return &View{
		UserID:       userID,
		BigFive:      p.BigFive,
		TraitCounts:  p.TraitCounts,
		TagCounts:    p.TagCounts,
		MoodStats:    stats.Compute(entries, now),
		LifeMapUsage: s.quota.Status(p.LifeMapUsage, now),
		LifeMapLimit: s.quota.Limit(),
		ServiceDays:  serviceDays(joined, now),
		JoinedAt:     &joined,
		Version:      p.Version,
	}, nil
}

// serviceDays counts completed 24h periods since joined plus one, so the
// first day of membership is day 1.
func serviceDays(joined, now time.Time) int {
	elapsed := now.UTC().Sub(joined.UTC())
	if elapsed < 0 {
		return 1
	}
	d := int(elapsed/(24*time.Hour)) + 1
	if d < 1 {
		return 1
	}
	return d
}
