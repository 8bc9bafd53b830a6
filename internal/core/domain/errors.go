package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication rejects a connection before any event surface
	// exists to report through.
	ErrAuthentication = errors.New("authentication failed")

	// ErrInvalidTransition is returned for call lifecycle violations.
	// The session is left untouched.
	ErrInvalidTransition = errors.New("invalid call transition")

	// ErrUnreachablePeer means the recipient has no live connection.
	// Non-fatal for messages, forces "missed" for calls.
	ErrUnreachablePeer = errors.New("peer unreachable")

	// ErrRelayDropped means a negotiation payload had no destination.
	// Always silent; disconnect handling reconciles the session later.
	ErrRelayDropped = errors.New("relay dropped: no room members")

	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports a malformed payload back to the originating
// connection only, never broadcast.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
