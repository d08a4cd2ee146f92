package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SchemaError reports a provider body that is not the expected JSON shape.
// It is treated like any other recoverable failure: the next credential is tried.
type SchemaError struct {
	Operation string
	Err       error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: response does not match schema: %v", e.Operation, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line, e.g. ```json
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject trims leading/trailing chatter around the outermost JSON object.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func decodeJSON[T any](op, raw string, v *validator.Validate, normalize func(*T)) (T, error) {
	var out T
	body := extractObject(stripFences(raw))
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&out); err != nil {
		return out, &SchemaError{Operation: op, Err: err}
	}
	if normalize != nil {
		normalize(&out)
	}
	if err := v.Struct(out); err != nil {
		return out, &SchemaError{Operation: op, Err: err}
	}
	return out, nil
}
