package command

import (
	"errors"
	"strings"
)

// Domain-specific errors for command operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnsupportedCommand is returned when a recognised command is used
	// on the wrong channel (broadcast-only commands on a device control
	// topic) or when the command name is outside the vocabulary.
	ErrUnsupportedCommand = errors.New("command: unsupported command")

	// ErrValidation is the sentinel matched by every ValidationError.
	ErrValidation = errors.New("command: validation failed")
)

// ValidationError reports why a payload failed structural or type
// checks. Issues are aggregated so a caller sees every problem at once.
//
// Matches ErrValidation under errors.Is().
type ValidationError struct {
	Issues []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "command: validation failed: " + strings.Join(e.Issues, "; ")
}

// Is reports whether target is the ErrValidation sentinel.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// invalid builds a single-issue ValidationError.
func invalid(issue string) *ValidationError {
	return &ValidationError{Issues: []string{issue}}
}
