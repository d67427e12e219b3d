package fixer

import (
	"errors"
	"fmt"
)

// Common fixer errors
var (
	// ErrVisualInfoNotFound is returned when the document directory holds no
	// visual-info file.
	ErrVisualInfoNotFound = errors.New("visual-info file not found")

	// ErrLoadFailed is returned when the visual-info file exists but cannot be
	// read or parsed. No fixes are applied.
	ErrLoadFailed = errors.New("failed to load visual-info document")

	// ErrSaveFailed is returned when the fixed document cannot be written. The
	// file on disk keeps its previous content and the in-memory document is
	// kept so the caller can retry.
	ErrSaveFailed = errors.New("failed to save visual-info document")
)

// FixError wraps errors with the operation and file that failed.
type FixError struct {
	// Op is the operation that failed (e.g., "Open", "Save").
	Op string

	// Path is the directory or file involved.
	Path string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *FixError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("fixer: %s %s failed: %s: %v", e.Op, e.Path, e.Details, e.Err)
	}
	return fmt.Sprintf("fixer: %s %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *FixError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *FixError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFixError creates a FixError whose Err matches both kind and cause.
func NewFixError(op, path string, kind, cause error) *FixError {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &FixError{Op: op, Path: path, Err: err}
}
