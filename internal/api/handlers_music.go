package api

import (
	"net/http"

	"github.com/onionlab/onion/internal/api/respond"
	"github.com/onionlab/onion/internal/music"
)

type MusicHandler struct {
	catalog *music.Catalog
}

func NewMusicHandler(c *music.Catalog) *MusicHandler { return &MusicHandler{catalog: c} }

type musicRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Artist   string `json:"artist" validate:"required,max=200"`
	URL      string `json:"url" validate:"required,max=2048"`
	Category string `json:"category" validate:"max=32"`
}

// AddMusic handles POST /api/musics.
func (h *MusicHandler) AddMusic(w http.ResponseWriter, r *http.Request) {
	var req musicRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	m, err := h.catalog.Add(r.Context(), music.Input{
		Title: req.Title, Artist: req.Artist, URL: req.URL, Category: req.Category,
	})
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, map[string]string{"status": "success", "id": m.MusicID})
}

// ListMusics handles GET /api/musics.
func (h *MusicHandler) ListMusics(w http.ResponseWriter, r *http.Request) {
	ms, err := h.catalog.List(r.Context())
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"musics": ms})
}
