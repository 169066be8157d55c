package model

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicatePeriodClear = errors.New("already recorded for this period")
	ErrValidation           = errors.New("validation failed")
	ErrImmutableField       = fmt.Errorf("%w: field is immutable", ErrValidation)
	ErrNotFound             = errors.New("not found")
	ErrRecomputeInProgress  = errors.New("recompute in progress")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrStaleGeneration      = errors.New("stale projection generation")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StorageError marks err as a storage failure unless it already is one or
// carries a domain meaning of its own.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicatePeriodClear) ||
		errors.Is(err, ErrStaleGeneration) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
