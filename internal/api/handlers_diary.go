package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/onionlab/onion/internal/api/respond"
	"github.com/onionlab/onion/internal/diary"
	"github.com/onionlab/onion/internal/model"
)

type DiaryHandler struct {
	mgr *diary.Manager
}

func NewDiaryHandler(mgr *diary.Manager) *DiaryHandler { return &DiaryHandler{mgr: mgr} }

type diaryRequest struct {
	DiaryID   string   `json:"diary_id" validate:"omitempty,uuid"`
	Title     string   `json:"title" validate:"max=200"`
	Content   string   `json:"content" validate:"max=20000"`
	EntryDate string   `json:"entry_date" validate:"max=10"`
	EntryTime string   `json:"entry_time" validate:"max=8"`
	Mood      string   `json:"mood" validate:"max=32"`
	Weather   string   `json:"weather" validate:"max=32"`
	Tags      []string `json:"tags" validate:"max=20,dive,max=50"`
	ImageURL  string   `json:"image_url" validate:"omitempty,url,max=2048"`
}

func (d diaryRequest) input() diary.Input {
	return diary.Input{
		EntryID: d.DiaryID, Title: d.Title, Content: d.Content,
		EntryDate: d.EntryDate, EntryTime: d.EntryTime,
		Mood: d.Mood, Weather: d.Weather, Tags: d.Tags, ImageURL: d.ImageURL,
	}
}

type patchRequest struct {
	Title     *string   `json:"title,omitempty" validate:"omitempty,max=200"`
	Content   *string   `json:"content,omitempty" validate:"omitempty,max=20000"`
	EntryDate *string   `json:"entry_date,omitempty" validate:"omitempty,max=10"`
	EntryTime *string   `json:"entry_time,omitempty" validate:"omitempty,max=8"`
	Mood      *string   `json:"mood,omitempty" validate:"omitempty,max=32"`
	Weather   *string   `json:"weather,omitempty" validate:"omitempty,max=32"`
	Tags      *[]string `json:"tags,omitempty" validate:"omitempty,max=20"`
	ImageURL  *string   `json:"image_url,omitempty" validate:"omitempty,max=2048"`
}

// SaveDraft handles POST /api/users/{userId}/diaries/drafts.
func (h *DiaryHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	var req diaryRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	res, err := h.mgr.SaveDraft(r.Context(), uid, req.input())
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// Finalize handles POST /api/users/{userId}/diaries.
func (h *DiaryHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	var req diaryRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	res, err := h.mgr.Finalize(r.Context(), uid, req.input())
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// ListDiaries handles GET /api/users/{userId}/diaries?include_drafts=true.
func (h *DiaryHandler) ListDiaries(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	includeDrafts := false
	if v := r.URL.Query().Get("include_drafts"); v != "" {
		includeDrafts, err = strconv.ParseBool(v)
		if err != nil {
			respond.WriteDomainError(w, model.NewValidationError("include_drafts", "must be a boolean"))
			return
		}
	}
	entries, err := h.mgr.List(r.Context(), uid, includeDrafts)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"diaries": entries,
		"count":   len(entries),
	})
}

// GetDiary handles GET /api/users/{userId}/diaries/{diaryId}.
func (h *DiaryHandler) GetDiary(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	e, err := h.mgr.Get(r.Context(), uid, mux.Vars(r)["diaryId"])
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, e)
}

// UpdateDiary handles PATCH /api/users/{userId}/diaries/{diaryId}.
func (h *DiaryHandler) UpdateDiary(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	var req patchRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	res, err := h.mgr.Update(r.Context(), uid, mux.Vars(r)["diaryId"], diary.Patch{
		Title: req.Title, Content: req.Content, EntryDate: req.EntryDate, EntryTime: req.EntryTime,
		Mood: req.Mood, Weather: req.Weather, Tags: req.Tags, ImageURL: req.ImageURL,
	})
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// DeleteDiary handles DELETE /api/users/{userId}/diaries/{diaryId}.
func (h *DiaryHandler) DeleteDiary(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	res, err := h.mgr.Delete(r.Context(), uid, mux.Vars(r)["diaryId"])
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}
