// Package bigfive holds the Big-Five facet model and the exponential moving
// average used to fold per-entry scores into a long-lived profile.
package bigfive

import (
	"math"
	"sort"
)

// Scores maps factor -> facet -> score on a 0..10 scale.
type Scores map[string]map[string]float64

const (
	// DefaultScore is the neutral value assumed for any facet never observed.
	DefaultScore = 5.0
	// DefaultAlpha weights the newest observation in Blend.
	DefaultAlpha = 0.2

	MinScore = 0.0
	MaxScore = 10.0
)

var factors = map[string][]string{
	"openness":          {"imagination", "artistic", "emotionality", "adventurousness", "intellect", "liberalism"},
	"conscientiousness": {"self_efficacy", "orderliness", "dutifulness", "achievement_striving", "self_discipline", "cautiousness"},
	"extraversion":      {"friendliness", "gregariousness", "assertiveness", "activity_level", "excitement_seeking", "cheerfulness"},
	"agreeableness":     {"trust", "morality", "altruism", "cooperation", "modesty", "sympathy"},
	"neuroticism":       {"anxiety", "anger", "depression", "self_consciousness", "immoderation", "vulnerability"},
}

// Factors returns the factor names in a stable order.
func Factors() []string {
	out := make([]string, 0, len(factors))
	for f := range factors {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Facets returns the facet names of a factor, or nil for unknown factors.
func Facets(factor string) []string {
	fs, ok := factors[factor]
	if !ok {
		return nil
	}
	return append([]string(nil), fs...)
}

// Default returns a fresh vector with every facet at DefaultScore.
func Default() Scores {
	out := make(Scores, len(factors))
	for f, facets := range factors {
		m := make(map[string]float64, len(facets))
		for _, facet := range facets {
			m[facet] = DefaultScore
		}
		out[f] = m
	}
	return out
}

// Clone returns a deep copy of s.
func (s Scores) Clone() Scores {
	if s == nil {
		return nil
	}
	out := make(Scores, len(s))
	for f, facets := range s {
		m := make(map[string]float64, len(facets))
		for k, v := range facets {
			m[k] = v
		}
		out[f] = m
	}
	return out
}

// Get returns the score for factor/facet and whether it was present.
func (s Scores) Get(factor, facet string) (float64, bool) {
	facets, ok := s[factor]
	if !ok {
		return 0, false
	}
	v, ok := facets[facet]
	return v, ok
}

// Blend folds incoming into current with an exponential moving average:
//
//	new = round2(old*(1-alpha) + incoming*alpha)
//
// A facet missing from current starts at DefaultScore; a facet missing from
// incoming keeps its old value. Incoming values are clamped to [0,10] first.
// Facets outside the canonical model are carried through unchanged.
func Blend(current, incoming Scores, alpha float64) Scores {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	out := current.Clone()
	if out == nil {
		out = make(Scores, len(factors))
	}
	for f, facets := range factors {
		dst, ok := out[f]
		if !ok {
			dst = make(map[string]float64, len(facets))
			out[f] = dst
		}
		for _, facet := range facets {
			old, ok := dst[facet]
			if !ok {
				old = DefaultScore
			}
			in, ok := incoming.Get(f, facet)
			if !ok {
				dst[facet] = Round2(old)
				continue
			}
			dst[facet] = Round2(old*(1-alpha) + Clamp(in)*alpha)
		}
	}
	return out
}

// Clamp bounds v to [MinScore, MaxScore]. NaN maps to DefaultScore.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return DefaultScore
	case v < MinScore:
		return MinScore
	case v > MaxScore:
		return MaxScore
	}
	return v
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
