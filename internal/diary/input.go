package diary

import (
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"

	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/tags"
)

// Input carries the user-editable fields of an entry. EntryID is optional:
// empty creates a new entry, otherwise the caller's entry with that id is
// updated in place.
type Input struct {
	EntryID   string
	Title     string
	Content   string
	EntryDate string
	EntryTime string
	Mood      string
	Weather   string
	Tags      []string
	ImageURL  string
}

// Patch lists the fields an edit may change; nil means unchanged.
type Patch struct {
	Title     *string
	Content   *string
	EntryDate *string
	EntryTime *string
	Mood      *string
	Weather   *string
	Tags      *[]string
	ImageURL  *string
}

func (p Patch) empty() bool {
	return p.Title == nil && p.Content == nil && p.EntryDate == nil && p.EntryTime == nil &&
		p.Mood == nil && p.Weather == nil && p.Tags == nil && p.ImageURL == nil
}

const maxContentRunes = 20000

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return model.NewValidationError("user_id", "must not be empty")
	}
	return nil
}

func validateEntryID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewValidationError("diary_id", "must be a UUID")
	}
	return nil
}

func validateDate(date string) error {
	if !strfmt.IsDate(date) {
		return model.NewValidationError("entry_date", "must be YYYY-MM-DD")
	}
	return nil
}

func validateTime(t string) error {
	if t == "" {
		return nil
	}
	if _, err := time.Parse("15:04", t); err != nil {
		if _, err := time.Parse("15:04:05", t); err != nil {
			return model.NewValidationError("entry_time", "must be HH:MM or HH:MM:SS")
		}
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return model.NewValidationError("content", "is required")
	}
	if len([]rune(content)) > maxContentRunes {
		return model.NewValidationError("content", "is too long")
	}
	return nil
}

// normalize trims labels and checks the fields every save needs.
func (in *Input) normalize() error {
	in.EntryID = strings.TrimSpace(in.EntryID)
	in.Mood = strings.TrimSpace(in.Mood)
	in.Weather = strings.TrimSpace(in.Weather)
	in.EntryDate = strings.TrimSpace(in.EntryDate)
	in.Tags = tags.Normalize(in.Tags)

	if in.EntryID != "" {
		if err := validateEntryID(in.EntryID); err != nil {
			return err
		}
	}
	if in.EntryDate != "" {
		if err := validateDate(in.EntryDate); err != nil {
			return err
		}
	}
	return validateTime(in.EntryTime)
}

// validateFinal enforces the fields a finalized entry must carry.
func (in *Input) validateFinal() error {
	if err := validateContent(in.Content); err != nil {
		return err
	}
	if in.EntryDate == "" {
		return model.NewValidationError("entry_date", "is required")
	}
	if in.Mood == "" {
		return model.NewValidationError("mood", "is required")
	}
	if in.Weather == "" {
		return model.NewValidationError("weather", "is required")
	}
	return nil
}

func (in *Input) apply(e *model.DiaryEntry) {
	e.Title = in.Title
	e.Content = in.Content
	e.EntryDate = in.EntryDate
	e.EntryTime = in.EntryTime
	e.Mood = in.Mood
	e.Weather = in.Weather
	e.Tags = in.Tags
	e.ImageURL = in.ImageURL
}

// applyPatch copies given fields onto e and validates the result.
func applyPatch(e *model.DiaryEntry, p Patch) error {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Content != nil {
		if e.IsFinal() {
			if err := validateContent(*p.Content); err != nil {
				return err
			}
		}
		e.Content = *p.Content
	}
	if p.EntryDate != nil {
		d := strings.TrimSpace(*p.EntryDate)
		if d != "" || e.IsFinal() {
			if err := validateDate(d); err != nil {
				return err
			}
		}
		e.EntryDate = d
	}
	if p.EntryTime != nil {
		if err := validateTime(*p.EntryTime); err != nil {
			return err
		}
		e.EntryTime = *p.EntryTime
	}
	if p.Mood != nil {
		m := strings.TrimSpace(*p.Mood)
		if m == "" && e.IsFinal() {
			return model.NewValidationError("mood", "is required")
		}
		e.Mood = m
	}
	if p.Weather != nil {
		w := strings.TrimSpace(*p.Weather)
		if w == "" && e.IsFinal() {
			return model.NewValidationError("weather", "is required")
		}
		e.Weather = w
	}
	if p.ImageURL != nil {
		e.ImageURL = *p.ImageURL
	}
	if p.Tags != nil {
		e.Tags = tags.Normalize(*p.Tags)
	}
	return nil
}
