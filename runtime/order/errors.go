package order

import (
	"errors"
	"strings"
)

// ErrFieldCleared is returned when an update tries to blank a field.
// Fields only go back to unset through Reset.
var ErrFieldCleared = errors.New("field cannot be cleared")

// FieldError reports a rejected value for a single field.
type FieldError struct {
	Field Field
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field.String() + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// IncompleteError is returned by Confirm when required fields are missing.
type IncompleteError struct {
	Missing []Field
}

func (e *IncompleteError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = f.String()
	}
	return "order incomplete, missing: " + strings.Join(names, ", ")
}
