package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/onionlab/onion/internal/model"
)

func entry(date, mood string, final bool) *model.DiaryEntry {
	return &model.DiaryEntry{EntryDate: date, Mood: mood, IsTemporary: !final}
}

func TestCompute_Windows(t *testing.T) {
	today := time.Date(2026, 3, 31, 15, 4, 0, 0, time.UTC)
	entries := []*model.DiaryEntry{
		entry("2026-03-31", "happy", true), // 0 days
		entry("2026-03-24", "calm", true),  // 7 days
		entry("2026-03-23", "calm", true),  // 8 days
		entry("2026-03-01", "sad", true),   // 30 days
		entry("2026-02-28", "sad", true),   // 31 days
		entry("2025-01-01", "happy", true),
	}

	w := Compute(entries, today)
	assert.Equal(t, Counts{"happy": 2, "calm": 2, "sad": 2}, w.All)
	assert.Equal(t, Counts{"happy": 1, "calm": 2, "sad": 1}, w.Month)
	assert.Equal(t, Counts{"happy": 1, "calm": 1}, w.Week)
}

func TestCompute_SkipsInvalid(t *testing.T) {
	today := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	entries := []*model.DiaryEntry{
		entry("2026-03-30", "", true),
		entry("not-a-date", "happy", true),
		entry("2026-03-30", "happy", false),
		entry("2026-04-02", "hopeful", true), // future: all only
	}

	w := Compute(entries, today)
	assert.Equal(t, Counts{"hopeful": 1}, w.All)
	assert.Empty(t, w.Month)
	assert.Empty(t, w.Week)
}

func TestCompute_NonUTCClock(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	// 2026-04-01 02:00 KST is still 2026-03-31 in UTC.
	today := time.Date(2026, 4, 1, 2, 0, 0, 0, loc)
	w := Compute([]*model.DiaryEntry{entry("2026-03-24", "calm", true)}, today)
	assert.Equal(t, 1, w.Week["calm"])
}
