package api

import (
	"net/http"

	"github.com/onionlab/onion/internal/api/respond"
	"github.com/onionlab/onion/internal/lifemap"
	"github.com/onionlab/onion/internal/model"
)

type LifeMapHandler struct {
	gen *lifemap.Generator
}

func NewLifeMapHandler(gen *lifemap.Generator) *LifeMapHandler { return &LifeMapHandler{gen: gen} }

// Generate handles POST /api/users/{userId}/life-map. The body is optional.
func (h *LifeMapHandler) Generate(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	var req lifemap.Request
	if err := decodeBody(w, r, &req, true); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	res, err := h.gen.Generate(r.Context(), uid, req)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// Latest handles GET /api/users/{userId}/life-map.
func (h *LifeMapHandler) Latest(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	rep, err := h.gen.Latest(r.Context(), uid)
	if model.IsNotFoundError(err) {
		respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "empty"})
		return
	}
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": lifemap.StatusSuccess,
		"result": rep,
	})
}
