package game

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound     = errors.New("game not found")
	ErrParticipantNotFound = errors.New("player not found")
	ErrVotingClosed        = errors.New("cannot vote after reveal")
	ErrValidation          = errors.New("validation failed")
)

// ValidationError reports client input that cannot be accepted. Value is
// the offending token; errors built with invalidToken always quote it, even
// when it is empty.
type ValidationError struct {
	Field  string
	Value  string
	Reason string

	token bool
}

func invalidToken(field, value, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason, token: true}
}

func (e *ValidationError) Error() string {
	if e.Value == "" && !e.token {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrParticipantNotFound)
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsConflict(err error) bool { return errors.Is(err, ErrVotingClosed) }
