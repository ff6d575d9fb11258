package store

import "fmt"

// Error is a storage-level failure. Services translate these into caller-visible errors.
type Error struct {
	Kind    string // stable identifier used by Is
	Message string
	Err     error // Underlying error (optional)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so wrapped copies still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: err}
}

// Sentinel errors.
var (
	ErrNotFound = &Error{
		Kind:    "not_found",
		Message: "resource not found",
	}

	ErrAlreadyExists = &Error{
		Kind:    "already_exists",
		Message: "resource already exists",
	}

	ErrInvalidInput = &Error{
		Kind:    "invalid_input",
		Message: "invalid input",
	}

	// ErrConflict means a concurrent transaction changed the document first.
	// The write can be retried on fresh data.
	ErrConflict = &Error{
		Kind:    "conflict",
		Message: "concurrent update",
	}
)
