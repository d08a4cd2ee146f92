package model

import (
	"encoding/json"
	"testing"
)

func TestTextList_AcceptsStringOrArray(t *testing.T) {
	var r LifeMapResult
	if err := json.Unmarshal([]byte(`{"deep_patterns":"one","life_keywords":["a","b"]}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(r.DeepPatterns) != 1 || r.DeepPatterns[0] != "one" {
		t.Fatalf("deep_patterns: %v", r.DeepPatterns)
	}
	if len(r.LifeKeywords) != 2 {
		t.Fatalf("life_keywords: %v", r.LifeKeywords)
	}
	if err := json.Unmarshal([]byte(`{"deep_patterns":7}`), &r); err == nil {
		t.Fatal("expected error for numeric deep_patterns")
	}
}

func TestDiaryEntry_Keywords(t *testing.T) {
	var nilEntry *DiaryEntry
	if nilEntry.Keywords() != nil || nilEntry.IsFinal() {
		t.Fatal("nil entry should have no keywords and not be final")
	}
	e := &DiaryEntry{Analysis: &EntryAnalysis{Keywords: []string{"calm"}}}
	if got := e.Keywords(); len(got) != 1 || got[0] != "calm" {
		t.Fatalf("keywords: %v", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	if !IsNotFoundError(ErrNotFound) || !IsNotFoundError(NewNotFoundError("diary_id", "x")) {
		t.Fatal("not found helpers")
	}
	if !IsValidationError(NewValidationError("content", "required")) {
		t.Fatal("validation helper")
	}
	if !IsConflictError(NewConflictError("diary_id", "final")) {
		t.Fatal("conflict helper")
	}
	q, ok := AsQuotaExceeded(QuotaExceededError{Count: 2, Limit: 2})
	if !ok || q.Limit != 2 {
		t.Fatalf("quota helper: %+v %v", q, ok)
	}
	if !IsAnalysisError(&AnalysisError{Operation: "analyze", Attempts: 3}) {
		t.Fatal("analysis helper")
	}
}
