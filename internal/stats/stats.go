// Package stats computes mood frequency windows over finalized entries.
package stats

import (
	"time"

	"github.com/onionlab/onion/internal/model"
)

const dateLayout = "2006-01-02"

// Window sizes in days, inclusive.
const (
	MonthDays = 30
	WeekDays  = 7
)

// Counts maps a mood label to the number of entries carrying it.
type Counts map[string]int

// Windows holds mood counts over the full history and two trailing windows.
type Windows struct {
	All   Counts `json:"all"`
	Month Counts `json:"month"`
	Week  Counts `json:"week"`
}

// Empty returns Windows with non-nil maps.
func Empty() Windows {
	return Windows{All: Counts{}, Month: Counts{}, Week: Counts{}}
}

// Compute buckets finalized entries by mood. today is reduced to its UTC date;
// an entry lands in Month when it is 0..30 days old and in Week when 0..7.
// Drafts, entries with an empty mood and unparseable dates are skipped.
func Compute(entries []*model.DiaryEntry, today time.Time) Windows {
	w := Empty()
	t := today.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	for _, e := range entries {
		if !e.IsFinal() || e.Mood == "" {
			continue
		}
		d, err := time.Parse(dateLayout, e.EntryDate)
		if err != nil {
			continue
		}
		w.All[e.Mood]++

		diff := int(day.Sub(d).Hours() / 24)
		if diff < 0 {
			continue
		}
		if diff <= MonthDays {
			w.Month[e.Mood]++
		}
		if diff <= WeekDays {
			w.Week[e.Mood]++
		}
	}
	return w
}
