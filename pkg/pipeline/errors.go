package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/salesflow/pkg/models"
)

// Business errors. They are expected outcomes of a request and are logged at
// debug level only.
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrNotFound             = errors.New("not found")
	ErrDuplicate            = errors.New("pipeline record already exists")
	ErrInvalidStage         = errors.New("invalid stage")
	ErrSameStage            = errors.New("record is already in the requested stage")
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	ErrApprovalRequired     = errors.New("transition requires approval")
	ErrMissingField         = errors.New("required fields missing")
	ErrMissingLossReason    = errors.New("a loss reason is required to close a deal as lost")
)

// Infrastructure and concurrency errors.
var (
	ErrConcurrencyConflict = errors.New("pipeline record was modified concurrently")
	ErrStoreUnavailable    = errors.New("pipeline store unavailable")
)

// TransitionNotAllowedError names the denied (from, to) pair.
type TransitionNotAllowedError struct {
	From models.StageID
	To   models.StageID
}

func (e *TransitionNotAllowedError) Error() string {
	return fmt.Sprintf("transition from %s to %s is not allowed", e.From, e.To)
}

func (e *TransitionNotAllowedError) Is(target error) bool {
	return target == ErrTransitionNotAllowed
}

// MissingFieldError lists every required field that was empty.
type MissingFieldError struct {
	From   models.StageID
	To     models.StageID
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("transition from %s to %s requires: %s", e.From, e.To, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// IsValidationError reports whether err is a business rejection rather than a
// failure of the service.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrInvalidStage) ||
		errors.Is(err, ErrSameStage) ||
		errors.Is(err, ErrTransitionNotAllowed) ||
		errors.Is(err, ErrApprovalRequired) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrMissingLossReason)
}

// IsConflictError checks if an error should be answered with 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, ErrConcurrencyConflict)
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStoreUnavailable, err)
}
