package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the store, token and session layers
var (
	// Lookup errors
	ErrNotFound = errors.New("not found")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
