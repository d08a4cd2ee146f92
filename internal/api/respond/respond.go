package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/onionlab/onion/internal/model"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Limit   *int   `json:"limit,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, newError(statusCode, message))
}

func newError(statusCode int, message string) ErrorResponse {
	return ErrorResponse{
		Status:  "error",
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	}
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteInternalError writes a 500 Internal Server Error response
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

// WriteDomainError maps a domain error to its HTTP status and writes it.
// Unknown errors are logged and reported as 500 without details.
func WriteDomainError(w http.ResponseWriter, err error) {
	var (
		ve model.ValidationError
		ne model.NotFoundError
		ce model.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		resp := newError(http.StatusBadRequest, ve.Message)
		resp.Field = ve.Field
		WriteJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &ne):
		resp := newError(http.StatusNotFound, ne.Error())
		resp.Field = ne.Field
		WriteJSON(w, http.StatusNotFound, resp)
	case model.IsNotFoundError(err):
		WriteNotFound(w, "not found")
	case errors.As(err, &ce):
		resp := newError(http.StatusConflict, ce.Message)
		resp.Field = ce.Field
		WriteJSON(w, http.StatusConflict, resp)
	default:
		if qe, ok := model.AsQuotaExceeded(err); ok {
			resp := newError(http.StatusTooManyRequests, qe.Error())
			resp.Count, resp.Limit = &qe.Count, &qe.Limit
			WriteJSON(w, http.StatusTooManyRequests, resp)
			return
		}
		if model.IsAnalysisError(err) {
			log.Error().Err(err).Msg("analysis failed")
			WriteInternalError(w, "analysis failed, please try again later")
			return
		}
		log.Error().Err(err).Msg("request failed")
		WriteInternalError(w, "internal error")
	}
}
