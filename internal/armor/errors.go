package armor

import (
	"errors"
	"fmt"
)

// ErrFormat is matched by every *FormatError.
var ErrFormat = errors.New("invalid envelope format")

// FormatError describes why a piece of text is not a valid envelope.
type FormatError struct {
	// Tag is the envelope kind that was expected.
	Tag Tag
	// Reason is a short human-readable description.
	Reason string
}

func (e *FormatError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("%v: %s", ErrFormat, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrFormat, e.Tag, e.Reason)
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func formatErrorf(tag Tag, format string, args ...any) error {
	return &FormatError{Tag: tag, Reason: fmt.Sprintf(format, args...)}
}
