package token

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingToken indicates that an empty value was handed to the parser.
	ErrMissingToken = errors.New("access token is missing")
	// ErrInvalidFormat is the sentinel every FormatError unwraps to.
	ErrInvalidFormat = errors.New("access token format is not valid")
)

// FormatError describes why a token could not be parsed.
type FormatError struct {
	// Scheme is the detected scheme, empty when the prefix itself was not recognized.
	Scheme Scheme
	// Reason is a human-readable explanation.
	Reason string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Scheme == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidFormat, e.Reason)
	}

	return fmt.Sprintf("%s token format is not valid: %s", e.Scheme, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidFormat).
func (e *FormatError) Unwrap() error {
	return ErrInvalidFormat
}

func newFormatError(scheme Scheme, reason string) *FormatError {
	return &FormatError{Scheme: scheme, Reason: reason}
}
