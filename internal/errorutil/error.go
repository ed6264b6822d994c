package errorutil

import (
	"errors"
	"fmt"
)

// New creates a sentinel error.
func New(msg string) error {
	return errors.New(msg)
}

// Format formats an error message. Use %w to keep the wrapped error
// reachable through errors.Is and errors.As.
func Format(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
