package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/onionlab/onion/internal/api/validate"
	"github.com/onionlab/onion/internal/model"
)

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return model.NewValidationError("body", "invalid json: "+err.Error())
		}
	}
	return validate.Struct(dst)
}

// userID returns the validated path user id.
func userID(r *http.Request) (string, error) {
	id := mux.Vars(r)["userId"]
	return id, validate.UserID(id)
}
