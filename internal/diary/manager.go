// Package diary owns the draft to final lifecycle of diary entries. It is the
// only component that triggers entry analysis and emits aggregation tasks.
package diary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/store"
	"github.com/onionlab/onion/internal/tags"
)

// Result statuses.
const (
	StatusDraftSaved = "draft_saved"
	StatusSuccess    = "success"
)

// traitContextSize bounds the existing keywords passed to the analyzer.
const traitContextSize = 50

// Analyzer produces the analysis snapshot for entry text.
type Analyzer interface {
	Analyze(ctx context.Context, text string, traits []string) (*model.EntryAnalysis, error)
}

// Scheduler accepts aggregation tasks after they are durably enqueued.
type Scheduler interface {
	Schedule(ctx context.Context, task *model.AggregationTask) error
}

// DraftResult is returned by SaveDraft.
type DraftResult struct {
	Status      string `json:"status"`
	DiaryID     string `json:"diary_id"`
	IsTemporary bool   `json:"is_temporary"`
}

// FinalizeResult is returned by Finalize.
type FinalizeResult struct {
	Status   string               `json:"status"`
	DiaryID  string               `json:"diary_id"`
	Analysis *model.EntryAnalysis `json:"analysis"`
}

// UpdateResult is returned by Update.
type UpdateResult struct {
	Status string      `json:"status"`
	Tags   tags.Change `json:"tags"`
}

// DeleteResult is returned by Delete.
type DeleteResult struct {
	Status      string   `json:"status"`
	RemovedTags []string `json:"removed_tags"`
}

// Config tunes the manager.
type Config struct {
	// RecoveryDelay is how long a fresh aggregation task waits before the
	// outbox worker may pick it up.
	RecoveryDelay time.Duration
}

// Manager implements the entry lifecycle.
type Manager struct {
	store     store.Store
	analyzer  Analyzer
	scheduler Scheduler // nil leaves tasks to the outbox worker
	tags      *tags.Reconciler
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewManager constructs a Manager.
func NewManager(st store.Store, analyzer Analyzer, scheduler Scheduler, cfg Config, log zerolog.Logger) *Manager {
	l := log.With().Str("component", "diary").Logger()
	return &Manager{
		store:     st,
		analyzer:  analyzer,
		scheduler: scheduler,
		tags:      tags.NewReconciler(model.CounterTag, l),
		cfg:       cfg,
		log:       l,
		now:       time.Now,
	}
}

// SaveDraft inserts a new draft or rewrites the caller's existing draft. No
// analysis is performed. A finalized entry cannot be demoted.
func (m *Manager) SaveDraft(ctx context.Context, userID string, in Input) (*DraftResult, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := m.now().UTC()

	var id string
	err := m.store.InTx(ctx, func(tx store.Repos) error {
		var before []string
		e := &model.DiaryEntry{UserID: userID, IsTemporary: true, CreatedAt: now}

		if in.EntryID != "" {
			cur, err := tx.Entries().GetForUpdate(ctx, userID, in.EntryID)
			if err != nil {
				return entryLookupError(err, in.EntryID)
			}
			if cur.IsFinal() {
				return model.NewConflictError("diary_id", "entry is already finalized")
			}
			e, before = cur, cur.Tags
		} else {
			e.EntryID = uuid.NewString()
		}

		in.apply(e)
		e.UpdatedAt = now
		if in.EntryID != "" {
			if err := tx.Entries().Update(ctx, e); err != nil {
				return fmt.Errorf("update draft: %w", err)
			}
		} else {
			if err := tx.Entries().Insert(ctx, e); err != nil {
				return fmt.Errorf("insert draft: %w", err)
			}
		}
		if err := m.reconcileTags(ctx, tx, userID, before, e.Tags); err != nil {
			return err
		}
		id = e.EntryID
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("user_id", userID).Str("diary_id", id).Msg("draft saved")
	return &DraftResult{Status: StatusDraftSaved, DiaryID: id, IsTemporary: true}, nil
}

// Finalize analyzes the entry and commits it with its snapshot. Nothing is
// written when analysis fails. The profile update runs after commit and is
// not awaited.
func (m *Manager) Finalize(ctx context.Context, userID string, in Input) (*FinalizeResult, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := in.validateFinal(); err != nil {
		return nil, err
	}

	if in.EntryID != "" {
		if _, err := m.store.Entries().Get(ctx, userID, in.EntryID); err != nil {
			return nil, entryLookupError(err, in.EntryID)
		}
	}

	traits, err := m.store.Profiles().TopKeys(ctx, userID, model.CounterTrait, traitContextSize)
	if err != nil {
		return nil, fmt.Errorf("load trait context: %w", err)
	}

	analysis, err := m.analyzer.Analyze(ctx, in.Content, traits)
	if err != nil {
		m.log.Error().Err(err).Str("user_id", userID).Msg("entry analysis failed")
		return nil, err
	}

	now := m.now().UTC()
	var task *model.AggregationTask
	err = m.store.InTx(ctx, func(tx store.Repos) error {
		if _, err := tx.Profiles().Ensure(ctx, userID, now); err != nil {
			return fmt.Errorf("ensure profile: %w", err)
		}

		var beforeTags, previousKeywords []string
		e := &model.DiaryEntry{EntryID: in.EntryID, UserID: userID, CreatedAt: now}
		if in.EntryID != "" {
			cur, err := tx.Entries().GetForUpdate(ctx, userID, in.EntryID)
			if err != nil {
				return entryLookupError(err, in.EntryID)
			}
			if cur.IsFinal() {
				previousKeywords = cur.Keywords()
			}
			e, beforeTags = cur, cur.Tags
		} else {
			e.EntryID = uuid.NewString()
		}

		in.apply(e)
		e.IsTemporary = false
		e.Analysis = analysis
		e.UpdatedAt = now
		if in.EntryID != "" {
			if err := tx.Entries().Update(ctx, e); err != nil {
				return fmt.Errorf("update entry: %w", err)
			}
		} else {
			if err := tx.Entries().Insert(ctx, e); err != nil {
				return fmt.Errorf("insert entry: %w", err)
			}
		}

		if err := m.reconcileTags(ctx, tx, userID, beforeTags, e.Tags); err != nil {
			return err
		}

		task = &model.AggregationTask{
			TaskID:           uuid.NewString(),
			UserID:           userID,
			EntryID:          e.EntryID,
			Keywords:         analysis.Keywords,
			PreviousKeywords: previousKeywords,
			BigFive:          analysis.BigFive,
			Status:           model.TaskPending,
			NextAttemptAt:    now.Add(m.cfg.RecoveryDelay),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Outbox().Enqueue(ctx, task); err != nil {
			return fmt.Errorf("enqueue aggregation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.scheduler != nil {
		// failures are logged by the scheduler; the outbox redelivers
		_ = m.scheduler.Schedule(ctx, task)
	}

	m.log.Info().Str("user_id", userID).Str("diary_id", task.EntryID).Strs("keywords", analysis.Keywords).Msg("entry finalized")
	return &FinalizeResult{Status: StatusSuccess, DiaryID: task.EntryID, Analysis: analysis}, nil
}

// Update applies the given fields without re-analysis. A changed tag set is
// reconciled in the same transaction.
func (m *Manager) Update(ctx context.Context, userID, entryID string, p Patch) (*UpdateResult, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := validateEntryID(entryID); err != nil {
		return nil, err
	}
	if p.empty() {
		return nil, model.NewValidationError("body", "no fields to update")
	}

	var change tags.Change
	err := m.store.InTx(ctx, func(tx store.Repos) error {
		e, err := tx.Entries().GetForUpdate(ctx, userID, entryID)
		if err != nil {
			return entryLookupError(err, entryID)
		}
		before := e.Tags
		if err := applyPatch(e, p); err != nil {
			return err
		}
		e.UpdatedAt = m.now().UTC()
		if err := tx.Entries().Update(ctx, e); err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		if p.Tags == nil {
			return nil
		}
		change, err = m.tags.Reconcile(ctx, tx.Profiles(), userID, before, e.Tags)
		if err != nil {
			return fmt.Errorf("reconcile tags: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &UpdateResult{Status: StatusSuccess, Tags: change}, nil
}

// Delete removes the entry and decrements its tags. Big-Five and keyword
// statistics are left as they are.
func (m *Manager) Delete(ctx context.Context, userID, entryID string) (*DeleteResult, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := validateEntryID(entryID); err != nil {
		return nil, err
	}

	var removed []string
	err := m.store.InTx(ctx, func(tx store.Repos) error {
		e, err := tx.Entries().GetForUpdate(ctx, userID, entryID)
		if err != nil {
			return entryLookupError(err, entryID)
		}
		if err := tx.Entries().Delete(ctx, userID, entryID); err != nil {
			return entryLookupError(err, entryID)
		}
		removed, err = m.tags.RemoveAll(ctx, tx.Profiles(), userID, e.Tags)
		if err != nil {
			return fmt.Errorf("remove tags: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info().Str("user_id", userID).Str("diary_id", entryID).Msg("entry deleted")
	return &DeleteResult{Status: StatusSuccess, RemovedTags: removed}, nil
}

// Get returns one of the caller's entries.
func (m *Manager) Get(ctx context.Context, userID, entryID string) (*model.DiaryEntry, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := validateEntryID(entryID); err != nil {
		return nil, err
	}
	e, err := m.store.Entries().Get(ctx, userID, entryID)
	if err != nil {
		return nil, entryLookupError(err, entryID)
	}
	return e, nil
}

// List returns the caller's entries, newest entry date first.
func (m *Manager) List(ctx context.Context, userID string, includeDrafts bool) ([]*model.DiaryEntry, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	return m.store.Entries().List(ctx, userID, store.ListOptions{FinalOnly: !includeDrafts})
}

func (m *Manager) reconcileTags(ctx context.Context, tx store.Repos, userID string, before, after []string) error {
	if _, err := m.tags.Reconcile(ctx, tx.Profiles(), userID, before, after); err != nil {
		return fmt.Errorf("reconcile tags: %w", err)
	}
	return nil
}

func entryLookupError(err error, entryID string) error {
	if errors.Is(err, model.ErrNotFound) {
		return model.NewNotFoundError("diary_id", entryID)
	}
	return err
}
