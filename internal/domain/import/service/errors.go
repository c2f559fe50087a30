package service

import (
	"errors"
	"fmt"
)

// StructuralError marks failures caused by the caller's input or environment
// (unreadable file, bad extension, missing worksheet, empty category set,
// unknown timezone, oversized file). The run aborts before any row result is
// produced and the message is safe to show to the user. Everything else that
// escapes a run is an internal failure and gets a generic message at the
// HTTP boundary.
type StructuralError struct {
	msg string
}

func (e *StructuralError) Error() string { return e.msg }

func structuralf(format string, args ...any) error {
	return &StructuralError{msg: fmt.Sprintf(format, args...)}
}

// IsStructural reports whether err is (or wraps) a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
