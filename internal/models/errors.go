package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request that is missing or has malformed fields.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a referenced entity that is absent or soft-deleted.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a natural key collision reported by the store.
	ErrConflict = errors.New("conflict")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Required returns a ValidationError for a missing field.
func Required(field string) error {
	return &ValidationError{Field: field}
}

// Invalid returns a ValidationError with a reason.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
