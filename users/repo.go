package users

import (
	"context"
	"errors"

	ierrors "github.com/jrsteele09/carnotes-server/internal/errors"
)

var (
	ErrNotFound       = ierrors.ErrNotFound
	ErrDuplicateEmail = errors.New("email already registered")
)

// Repo is the credential store. Every lookup returns ErrNotFound when no user
// matches; ReplaceRefreshTokens swaps the whole token set in one atomic write.
type Repo interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByRefreshToken(ctx context.Context, token string) (*User, error)
	InsertUser(ctx context.Context, username, email, passwordHash string) (*User, error)
	ReplaceRefreshTokens(ctx context.Context, userID string, tokens []string) error
	// UpdatePassword also empties the refresh token set.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetRoles(ctx context.Context, userID string, roles []RoleType) error
	DeleteUser(ctx context.Context, userID string) error
}
