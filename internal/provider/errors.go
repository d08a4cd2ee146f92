package provider

import (
	"errors"
	"fmt"
)

// ErrorCategory determines how a failed provider call is handled.
type ErrorCategory int

const (
	// Recoverable errors move on to the next credential or attempt.
	// Examples: 429 quota, 401/403 on a single key, 5xx, timeouts, empty bodies.
	Recoverable ErrorCategory = iota

	// Irrecoverable errors abort the invocation immediately.
	// Examples: 400 malformed request, 404 unknown model.
	Irrecoverable
)

// String returns a human-readable representation of the error category.
func (c ErrorCategory) String() string {
	switch c {
	case Recoverable:
		return "Recoverable"
	case Irrecoverable:
		return "Irrecoverable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// ErrEmptyResponse is returned when the provider answered without usable text.
var ErrEmptyResponse = errors.New("empty response from provider")

// ClassifiedError wraps a provider failure with retry metadata.
type ClassifiedError struct {
	Category   ErrorCategory
	StatusCode int    // HTTP status code (0 for non-HTTP errors)
	Body       string // Response body for debugging
	Underlying error
}

func (e *ClassifiedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s] HTTP %d: %v", e.Category, e.StatusCode, e.Underlying)
	}
	return fmt.Sprintf("[%s] %v", e.Category, e.Underlying)
}

func (e *ClassifiedError) Unwrap() error { return e.Underlying }

// IsIrrecoverable reports whether err (or anything it wraps) must not be retried.
func IsIrrecoverable(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category == Irrecoverable
	}
	return false
}

// ClassifyHTTPError maps a provider status code to a category.
// Credential-scoped failures (401, 403, 429) are recoverable because another
// key may succeed.
func ClassifyHTTPError(statusCode int, body string, underlying error) *ClassifiedError {
	return &ClassifiedError{
		Category:   categoryFor(statusCode),
		StatusCode: statusCode,
		Body:       body,
		Underlying: underlying,
	}
}

func categoryFor(statusCode int) ErrorCategory {
	switch {
	case statusCode >= 400 && statusCode < 500:
		switch statusCode {
		case 401, 403, 408, 429:
			return Recoverable
		default:
			return Irrecoverable
		}
	default:
		return Recoverable
	}
}

// NewHTTPError creates a classified error for a non-2xx provider response.
func NewHTTPError(statusCode int, body, operation string) *ClassifiedError {
	return ClassifyHTTPError(statusCode, body, fmt.Errorf("%s failed: HTTP %d", operation, statusCode))
}

// NewNetworkError creates a classified error for transport failures.
func NewNetworkError(operation string, err error) *ClassifiedError {
	return &ClassifiedError{
		Category:   Recoverable,
		Underlying: fmt.Errorf("%s network error: %w", operation, err),
	}
}

// NewEmptyResponseError classifies a blocked or empty generation as recoverable.
func NewEmptyResponseError(operation, reason string) *ClassifiedError {
	err := ErrEmptyResponse
	if reason != "" {
		err = fmt.Errorf("%w (%s)", ErrEmptyResponse, reason)
	}
	return &ClassifiedError{
		Category:   Recoverable,
		Underlying: fmt.Errorf("%s: %w", operation, err),
	}
}
