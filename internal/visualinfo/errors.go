package visualinfo

import (
	"errors"
	"fmt"
)

// Common document errors
var (
	// ErrInvalidDocument is returned when the visual-info file is not a JSON
	// object or its elements key is not an array.
	ErrInvalidDocument = errors.New("invalid visual-info document")

	// ErrMalformedElement is returned when an element cannot be decoded into
	// the typed view, or when a mutation is attempted on such an element.
	ErrMalformedElement = errors.New("malformed element")

	// ErrLabelNotAllowed is returned when a mutation would write a label
	// outside the allowed vocabulary.
	ErrLabelNotAllowed = errors.New("label not allowed")

	// ErrPatchFailed is returned when the raw element bytes cannot be patched.
	ErrPatchFailed = errors.New("failed to patch element JSON")
)

// DocumentError wraps errors with the operation and file that failed.
type DocumentError struct {
	// Op is the operation that failed (e.g., "Load", "Encode").
	Op string

	// Path is the visual-info file involved, if known.
	Path string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *DocumentError) Error() string {
	msg := fmt.Sprintf("visualinfo: %s failed", e.Op)
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *DocumentError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDocumentError creates a new DocumentError.
func NewDocumentError(op, path string, err error, details string) *DocumentError {
	return &DocumentError{
		Op:      op,
		Path:    path,
		Err:     err,
		Details: details,
	}
}
