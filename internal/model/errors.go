package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError represents a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error (including wrapped errors)
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// NotFoundError represents a missing or foreign-owned resource.
type NotFoundError struct {
	Field   string
	Message string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("not found %s: %s", e.Field, e.Message)
}

// NewNotFoundError constructs NotFoundError
func NewNotFoundError(field, message string) NotFoundError {
	return NotFoundError{Field: field, Message: message}
}

// IsNotFoundError checks if error is NotFoundError or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	var ne NotFoundError
	return errors.As(err, &ne) || errors.Is(err, ErrNotFound)
}

// ConflictError represents an illegal state transition.
type ConflictError struct {
	Field   string
	Message string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Field, e.Message)
}

// NewConflictError constructs ConflictError
func NewConflictError(field, message string) ConflictError {
	return ConflictError{Field: field, Message: message}
}

// IsConflictError checks if error is ConflictError
func IsConflictError(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// QuotaExceededError is returned when the monthly life-map limit is used up.
type QuotaExceededError struct {
	Count int
	Limit int
}

func (e QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded: %d/%d", e.Count, e.Limit)
}

// AsQuotaExceeded extracts a QuotaExceededError from err.
func AsQuotaExceeded(err error) (QuotaExceededError, bool) {
	var qe QuotaExceededError
	ok := errors.As(err, &qe)
	return qe, ok
}

// AnalysisError reports that every provider attempt was exhausted or a
// non-retryable provider failure occurred.
type AnalysisError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Operation, e.Attempts, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// IsAnalysisError checks if error is an AnalysisError
func IsAnalysisError(err error) bool {
	var ae *AnalysisError
	return errors.As(err, &ae)
}
