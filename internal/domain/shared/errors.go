// Package shared contains common domain types and errors that are used
// across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Lookup errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Data integrity errors
	ErrMissingFeature  = errors.New("missing feature")
	ErrUnknownCategory = errors.New("unknown category")
	ErrColumnConflict  = errors.New("column conflict")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "attendance", "profile", "risk"
	Op      string // Operation that failed, e.g., "Merge", "Classify"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Profile domain errors
var (
	ErrStudentNotFound  = NewDomainError("profile", "Find", ErrNotFound, "student not found")
	ErrInvalidStudentID = NewDomainError("profile", "Validate", ErrInvalidID, "student_id must be positive")
	ErrColumnCollision  = NewDomainError("profile", "Join", ErrColumnConflict, "rows share a non-key column")
)

// Attendance domain errors
var (
	ErrInvalidStatus  = NewDomainError("attendance", "Validate", ErrInvalidInput, "invalid attendance status")
	ErrInvalidDate    = NewDomainError("attendance", "Validate", ErrInvalidFormat, "invalid attendance date")
	ErrNoEventsToSave = NewDomainError("attendance", "Upsert", ErrEmptyValue, "no attendance records to save")
)

// Risk domain errors
var (
	ErrModelNotFound   = NewDomainError("risk", "LoadModel", ErrNotFound, "risk model artifact not found")
	ErrNoTrainingData  = NewDomainError("risk", "Train", ErrEmptyValue, "no training data available")
	ErrCycleInProgress = NewDomainError("risk", "Recompute", ErrConcurrentModification, "another recomputation cycle holds the lock")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsRowFault checks if the error only affects a single row of a batch.
func IsRowFault(err error) bool {
	return errors.Is(err, ErrMissingFeature) ||
		errors.Is(err, ErrUnknownCategory)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConcurrentModification)
}

// SourceUnavailable wraps a store failure so that callers can abort the cycle.
func SourceUnavailable(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrServiceUnavailable, "data source unavailable", err)
}
