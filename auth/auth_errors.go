package auth

import (
	"errors"
	"fmt"
)

// ErrConflict is returned by Register when the email is already taken.
var ErrConflict = errors.New("email already registered")

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// AuthError is an authentication failure. Compare against the sentinels below
// with errors.Is.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return e.Reason
}

var (
	ErrNoAccount      = &AuthError{Reason: "no such account"}
	ErrBadCredentials = &AuthError{Reason: "bad credentials"}
	ErrUnauthorized   = &AuthError{Reason: "unauthorized"}
)
