// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRecordNotFound indicates the pipeline record does not exist (anymore).
	ErrRecordNotFound = errors.New("pipeline record not found")

	// ErrRecordAlreadyExists indicates the lead already has a pipeline record.
	ErrRecordAlreadyExists = errors.New("pipeline record already exists")

	// ErrLeadNotFound indicates the lead does not exist.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrVersionConflict indicates the record changed since it was read.
	ErrVersionConflict = errors.New("pipeline record version conflict")

	// ErrUnavailable wraps infrastructure failures of the underlying store.
	ErrUnavailable = errors.New("store unavailable")
)

// RecordError wraps record-related errors with additional context.
type RecordError struct {
	Op     string // Operation being performed (e.g., "Create", "CommitTransition")
	LeadID string
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for lead %s: %v", e.Op, e.LeadID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewRecordError(op, leadID string, err error) *RecordError {
	return &RecordError{Op: op, LeadID: leadID, Err: err}
}

// Unavailable marks err as an infrastructure failure while keeping it inspectable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

func IsRecordAlreadyExists(err error) bool {
	return errors.Is(err, ErrRecordAlreadyExists)
}

func IsLeadNotFound(err error) bool {
	return errors.Is(err, ErrLeadNotFound)
}

func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsUnavailable checks if an error indicates an infrastructure failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
