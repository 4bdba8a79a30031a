package model

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Handlers map them to HTTP statuses and
// localized messages; wrap them with fmt.Errorf to add detail.
var (
	ErrNotFound         = errors.New("not found")
	ErrOutsideWindow    = errors.New("outside exam window")
	ErrExamInactive     = errors.New("exam is not active")
	ErrAlreadyCompleted = errors.New("exam already completed")
	ErrAlreadySubmitted = errors.New("exam already submitted")
	ErrNotSubmitted     = errors.New("exam not submitted yet")
	ErrValidation       = errors.New("validation failed")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("conflict")
	ErrUnavailable      = errors.New("service unavailable")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field string
	Tag   string
}

// ValidationError carries per-field failures and unwraps to ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Fields[0].Field, e.Fields[0].Tag)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for a single field.
func Invalid(field, tag string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Tag: tag}}}
}
