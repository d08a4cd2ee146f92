package api

import (
	"net/http"

	"github.com/onionlab/onion/internal/api/respond"
	"github.com/onionlab/onion/internal/profile"
)

type ProfileHandler struct {
	svc *profile.Service
}

func NewProfileHandler(svc *profile.Service) *ProfileHandler { return &ProfileHandler{svc: svc} }

// EnsureProfile handles POST /api/users/{userId}/profile.
func (h *ProfileHandler) EnsureProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	view, created, err := h.svc.Ensure(r.Context(), uid)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	respond.WriteJSON(w, code, view)
}

// GetProfile handles GET /api/users/{userId}/profile.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	view, err := h.svc.Get(r.Context(), uid)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, view)
}
