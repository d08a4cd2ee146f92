package model

import (
	"encoding/json"
	"time"

	"github.com/onionlab/onion/internal/bigfive"
)

// DiaryEntry is a single diary record. Drafts carry no Analysis; a finalized
// entry always carries a complete snapshot.
type DiaryEntry struct {
	EntryID     string         `json:"diary_id"`
	UserID      string         `json:"user_id"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	EntryDate   string         `json:"entry_date"`
	EntryTime   string         `json:"entry_time,omitempty"`
	Mood        string         `json:"mood"`
	Weather     string         `json:"weather"`
	Tags        []string       `json:"tags"`
	ImageURL    string         `json:"image_url,omitempty"`
	IsTemporary bool           `json:"is_temporary"`
	Analysis    *EntryAnalysis `json:"analysis,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsFinal reports whether the entry has been finalized.
func (e *DiaryEntry) IsFinal() bool { return e != nil && !e.IsTemporary }

// Keywords returns the keywords of the current snapshot, if any.
func (e *DiaryEntry) Keywords() []string {
	if e == nil || e.Analysis == nil {
		return nil
	}
	return e.Analysis.Keywords
}

// Themes are the five CBT-lens narratives produced for an entry.
type Themes struct {
	Theme1 string `json:"theme1" validate:"required"` // emotional flow
	Theme2 string `json:"theme2" validate:"required"` // core belief
	Theme3 string `json:"theme3" validate:"required"` // distortion check
	Theme4 string `json:"theme4" validate:"required"` // behavior pattern
	Theme5 string `json:"theme5" validate:"required"` // growth
}

// Method is a single recommended practice.
type Method struct {
	Main    string `json:"main" validate:"required"`
	Content string `json:"content" validate:"required"`
	Effect  string `json:"effect"`
}

// Recommendation is a headline plus up to three practices.
type Recommendation struct {
	Head    string  `json:"head" validate:"required"`
	Method1 *Method `json:"method1" validate:"required"`
	Method2 *Method `json:"method2,omitempty" validate:"omitempty"`
	Method3 *Method `json:"method3,omitempty" validate:"omitempty"`
}

// EntryAnalysis is the snapshot stored on a finalized entry.
type EntryAnalysis struct {
	EventSummary string          `json:"event_summary,omitempty"`
	Themes       *Themes         `json:"analysis" validate:"required"`
	Recommend    *Recommendation `json:"recommend" validate:"required"`
	OneLiner     string          `json:"one_liner" validate:"required"`
	Keywords     []string        `json:"keywords" validate:"required,min=1,max=3,dive,required"`
	BigFive      bigfive.Scores  `json:"big5" validate:"required"`
}

// LifeMapUsage tracks life-map generations within a calendar month.
type LifeMapUsage struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// UserProfile is the durable per-user aggregate.
type UserProfile struct {
	UserID       string         `json:"user_id"`
	BigFive      bigfive.Scores `json:"big5"`
	TraitCounts  map[string]int `json:"trait_counts"`
	TagCounts    map[string]int `json:"tag_counts"`
	LifeMapUsage LifeMapUsage   `json:"life_map_usage"`
	Version      int64          `json:"version"`
	JoinedAt     time.Time      `json:"joined_at"`
	LastUpdated  time.Time      `json:"last_updated"`
}

// LifeMapResult is the structured long-form report.
type LifeMapResult struct {
	DeepPatterns        TextList        `json:"deep_patterns" validate:"required,min=1"`
	Seasonality         string          `json:"seasonality" validate:"required"`
	GrowthEvaluation    string          `json:"growth_evaluation,omitempty"`
	LifeKeywords        TextList        `json:"life_keywords" validate:"required,min=1"`
	AdviceForFuture     string          `json:"advice_for_future,omitempty"`
	MajorEventsTimeline json.RawMessage `json:"major_events_timeline,omitempty"`
	PastVsPresent       string          `json:"past_vs_present,omitempty"`
	ChangeAnalysis      string          `json:"change_analysis,omitempty"`
}

// TextList decodes from either a JSON array of strings or a single string.
type TextList []string

func (l *TextList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*l = nil
			return nil
		}
		*l = TextList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// LifeReport is an immutable persisted life-map result.
type LifeReport struct {
	ReportID   string        `json:"report_id"`
	UserID     string        `json:"user_id"`
	EntryCount int           `json:"entry_count"`
	Result     LifeMapResult `json:"result"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Aggregation task states.
const (
	TaskPending = "pending"
	TaskDone    = "done"
	TaskDead    = "dead"
)

// AggregationTask is the durable unit of profile work emitted by finalize.
type AggregationTask struct {
	TaskID           string         `json:"task_id"`
	UserID           string         `json:"user_id"`
	EntryID          string         `json:"diary_id"`
	Keywords         []string       `json:"keywords"`
	PreviousKeywords []string       `json:"previous_keywords,omitempty"`
	BigFive          bigfive.Scores `json:"big5"`
	Status           string         `json:"status"`
	Attempts         int            `json:"attempts"`
	NextAttemptAt    time.Time      `json:"next_attempt_at"`
	LastError        string         `json:"last_error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// CounterKind selects a per-user frequency table.
type CounterKind string

const (
	CounterTrait CounterKind = "trait"
	CounterTag   CounterKind = "tag"
)

// DefaultMusicCategory is used when a track is added without a category.
const DefaultMusicCategory = "calm"

// Music is a catalogue track. URL points at externally hosted audio and is
// never fetched by the service.
type Music struct {
	MusicID   string    `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	URL       string    `json:"url"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}
