package api

import (
	"io"
	"net/http"

	"github.com/onionlab/onion/internal/api/respond"
	"github.com/onionlab/onion/internal/model"
)

const maxScanBytes = 10 << 20

type ScanHandler struct {
	scanner Transcriber
}

func NewScanHandler(s Transcriber) *ScanHandler { return &ScanHandler{scanner: s} }

// Scan handles POST /api/scan-diary with a multipart "file" field.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxScanBytes+1<<16)
	if err := r.ParseMultipartForm(maxScanBytes); err != nil {
		respond.WriteDomainError(w, model.NewValidationError("file", "invalid multipart body"))
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		respond.WriteDomainError(w, model.NewValidationError("file", "is required"))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxScanBytes+1))
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	if len(data) > maxScanBytes {
		respond.WriteDomainError(w, model.NewValidationError("file", "exceeds 10MB"))
		return
	}

	mime := hdr.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	text, err := h.scanner.Transcribe(r.Context(), data, mime)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"extracted_text": text})
}
