// Package tags keeps per-user frequency tables in step with the label sets
// on diary entries.
package tags

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/onionlab/onion/internal/model"
)

var anomaliesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "onion",
		Subsystem: "counters",
		Name:      "reconcile_anomalies_total",
		Help:      "Decrements that found no positive counter.",
	},
	[]string{"kind"},
)

// Counters is the storage contract for atomic per-key counter updates.
// SubtractCounts never drives a counter below zero, prunes rows that reach
// zero and returns the keys that had no positive counter to decrement.
type Counters interface {
	AddCounts(ctx context.Context, userID string, kind model.CounterKind, keys []string) error
	SubtractCounts(ctx context.Context, userID string, kind model.CounterKind, keys []string) ([]string, error)
}

// Normalize trims labels, drops empties and duplicates, keeping first-seen order.
func Normalize(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Diff returns the symmetric difference between two label sets.
func Diff(before, after []string) (added, removed []string) {
	before, after = Normalize(before), Normalize(after)
	inBefore := make(map[string]struct{}, len(before))
	for _, s := range before {
		inBefore[s] = struct{}{}
	}
	inAfter := make(map[string]struct{}, len(after))
	for _, s := range after {
		inAfter[s] = struct{}{}
		if _, ok := inBefore[s]; !ok {
			added = append(added, s)
		}
	}
	for _, s := range before {
		if _, ok := inAfter[s]; !ok {
			removed = append(removed, s)
		}
	}
	return added, removed
}

// Change describes what a reconcile applied.
type Change struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool { return len(c.Added) == 0 && len(c.Removed) == 0 }

// Reconciler applies label-set transitions to one counter kind.
type Reconciler struct {
	kind model.CounterKind
	log  zerolog.Logger
}

// NewReconciler returns a Reconciler for kind.
func NewReconciler(kind model.CounterKind, log zerolog.Logger) *Reconciler {
	return &Reconciler{kind: kind, log: log.With().Str("component", "reconciler").Str("kind", string(kind)).Logger()}
}

// Reconcile moves the counters from the before set to the after set.
func (r *Reconciler) Reconcile(ctx context.Context, c Counters, userID string, before, after []string) (Change, error) {
	added, removed := Diff(before, after)
	ch := Change{Added: added, Removed: removed}
	if ch.Empty() {
		return ch, nil
	}
	if len(added) > 0 {
		if err := c.AddCounts(ctx, userID, r.kind, added); err != nil {
			return Change{}, err
		}
	}
	if len(removed) > 0 {
		if _, err := r.subtract(ctx, c, userID, removed); err != nil {
			return Change{}, err
		}
	}
	return ch, nil
}

// RemoveAll decrements every label in set and returns the labels whose
// counts were actually decremented.
func (r *Reconciler) RemoveAll(ctx context.Context, c Counters, userID string, set []string) ([]string, error) {
	set = Normalize(set)
	if len(set) == 0 {
		return []string{}, nil
	}
	missing, err := r.subtract(ctx, c, userID, set)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]struct{}, len(missing))
	for _, k := range missing {
		skip[k] = struct{}{}
	}
	removed := make([]string, 0, len(set))
	for _, k := range set {
		if _, ok := skip[k]; !ok {
			removed = append(removed, k)
		}
	}
	return removed, nil
}

func (r *Reconciler) subtract(ctx context.Context, c Counters, userID string, keys []string) ([]string, error) {
	missing, err := c.SubtractCounts(ctx, userID, r.kind, keys)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		anomaliesTotal.WithLabelValues(string(r.kind)).Add(float64(len(missing)))
		r.log.Warn().Str("user_id", userID).Strs("keys", missing).Msg("decrement on missing counter")
	}
	return missing, nil
}
