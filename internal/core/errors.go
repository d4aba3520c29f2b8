package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrRangeExhausted    = errors.New("receipt book range exhausted")
	ErrOutOfRange        = errors.New("receipt number out of range")
	ErrDuplicateNumber   = errors.New("receipt number already used")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
	ErrRestoreInProgress = errors.New("restore in progress")
)

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level detail and matches ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewFieldError is a shorthand for a single-field validation failure.
func NewFieldError(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// RangeExhaustedError is returned when every number of a book is in use.
type RangeExhaustedError struct {
	BookID int64
}

func (e *RangeExhaustedError) Error() string {
	return fmt.Sprintf("receipt book %d range exhausted", e.BookID)
}

func (e *RangeExhaustedError) Is(target error) bool {
	return target == ErrRangeExhausted
}

// InvalidSnapshotError lists every problem found in a restore document.
type InvalidSnapshotError struct {
	Problems []string
}

func (e *InvalidSnapshotError) Error() string {
	const maxShown = 10
	shown := e.Problems
	suffix := ""
	if len(shown) > maxShown {
		suffix = fmt.Sprintf(" (and %d more)", len(shown)-maxShown)
		shown = shown[:maxShown]
	}
	return "invalid snapshot: " + strings.Join(shown, "; ") + suffix
}

func (e *InvalidSnapshotError) Is(target error) bool {
	return target == ErrInvalidSnapshot
}
