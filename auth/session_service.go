// Package auth is the session manager: registration, login, refresh token
// rotation with reuse detection, logout and account maintenance.
package auth

import (
	"context"
	"slices"
	"time"

	"github.com/jrsteele09/carnotes-server/token"
	"github.com/jrsteele09/carnotes-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultLockWait = 5 * time.Second

// Session is what a successful login or refresh hands back to the caller.
type Session struct {
	User         users.Profile
	AccessToken  string
	RefreshToken string
}

// SessionService owns every change to a user's refresh token set. Changes for
// one user are serialised through the Locker and always recomputed from a
// fresh read taken while holding the lock.
type SessionService struct {
	users     users.Repo
	codec     *token.Codec
	hasher    users.Hasher
	validator *Validator
	locker    Locker
	lockWait  time.Duration
}

// SessionServiceOption configures a SessionService.
type SessionServiceOption func(*SessionService)

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h users.Hasher) SessionServiceOption {
	return func(s *SessionService) {
		s.hasher = h
	}
}

// WithLocker sets the per-user lock, e.g. a RedisLocker when several
// instances share one store.
func WithLocker(l Locker) SessionServiceOption {
	return func(s *SessionService) {
		s.locker = l
	}
}

// WithLockWait bounds how long an operation waits for the user's lock.
func WithLockWait(d time.Duration) SessionServiceOption {
	return func(s *SessionService) {
		s.lockWait = d
	}
}

func NewSessionService(repo users.Repo, codec *token.Codec, options ...SessionServiceOption) (*SessionService, error) {
	if repo == nil {
		return nil, errors.New("[NewSessionService] users repo is required")
	}
	if codec == nil {
		return nil, errors.New("[NewSessionService] token codec is required")
	}

	s := &SessionService{
		users:     repo,
		codec:     codec,
		hasher:    users.NewBcryptHasher(users.DefaultPasswordCost),
		validator: NewValidator(),
		locker:    NewLocalLocker(),
		lockWait:  defaultLockWait,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Register creates an account with an empty refresh token set.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) error {
	in = s.validator.SanitizeRegister(in)
	if err := s.validator.ValidateRegister(in); err != nil {
		return err
	}

	_, err := s.users.FindByEmail(ctx, in.Email)
	if err == nil {
		return ErrConflict
	}
	if !errors.Is(err, users.ErrNotFound) {
		return errors.Wrap(err, "[SessionService.Register] find user")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return errors.Wrap(err, "[SessionService.Register] hash password")
	}

	if _, err := s.users.InsertUser(ctx, in.UserName, in.Email, hash); err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			return ErrConflict
		}
		return errors.Wrap(err, "[SessionService.Register] insert user")
	}
	return nil
}

// Login checks the credentials and opens a new session. A refresh token from
// an earlier session on the same browser is dropped from the set.
func (s *SessionService) Login(ctx context.Context, email, password, existingRefresh string) (*Session, error) {
	email = s.validator.Sanitize(email)
	password = s.validator.Sanitize(password)
	if err := s.validator.ValidateLogin(email, password); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrNoAccount
		}
		return nil, errors.Wrap(err, "[SessionService.Login] find user")
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrBadCredentials
	}

	var session *Session
	err = s.withUserLock(ctx, user.ID, func(ctx context.Context) error {
		fresh, err := s.users.FindByID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				return ErrNoAccount
			}
			return errors.Wrap(err, "[SessionService.Login] reload user")
		}

		tokens := fresh.RefreshTokens
		if existingRefresh != "" {
			tokens = users.WithoutToken(tokens, existingRefresh)
		}
		session, err = s.issue(ctx, fresh, tokens)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Refresh redeems a refresh token for a new pair. The presented token is spent
// whatever the outcome. A token that is no longer in any set is treated as
// stolen: every session of the user it names is revoked. All failures look
// the same to the caller.
func (s *SessionService) Refresh(ctx context.Context, presented string) (*Session, error) {
	if presented == "" {
		return nil, ErrUnauthorized
	}

	owner, err := s.users.FindByRefreshToken(ctx, presented)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, s.revokeOnReuse(ctx, presented)
		}
		return nil, errors.Wrap(err, "[SessionService.Refresh] find token owner")
	}

	var session *Session
	err = s.withUserLock(ctx, owner.ID, func(ctx context.Context) error {
		fresh, err := s.users.FindByID(ctx, owner.ID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				return ErrUnauthorized
			}
			return errors.Wrap(err, "[SessionService.Refresh] reload user")
		}

		// spent by a concurrent request between the lookup and the lock
		if !fresh.HasRefreshToken(presented) {
			return s.revokeAll(ctx, fresh.ID)
		}

		remaining := users.WithoutToken(fresh.RefreshTokens, presented)

		payload, err := s.codec.Verify(token.Refresh, presented)
		if err != nil || payload.UserID != fresh.ID {
			if err := s.users.ReplaceRefreshTokens(ctx, fresh.ID, remaining); err != nil {
				return errors.Wrap(err, "[SessionService.Refresh] burn token")
			}
			return ErrUnauthorized
		}

		session, err = s.issue(ctx, fresh, remaining)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Logout removes the presented refresh token. Missing or unknown tokens are
// not an error.
func (s *SessionService) Logout(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}

	owner, err := s.users.FindByRefreshToken(ctx, presented)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "[SessionService.Logout] find token owner")
	}

	return s.withUserLock(ctx, owner.ID, func(ctx context.Context) error {
		fresh, err := s.users.FindByID(ctx, owner.ID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				return nil
			}
			return errors.Wrap(err, "[SessionService.Logout] reload user")
		}
		if !fresh.HasRefreshToken(presented) {
			return nil
		}
		if err := s.users.ReplaceRefreshTokens(ctx, fresh.ID, users.WithoutToken(fresh.RefreshTokens, presented)); err != nil {
			return errors.Wrap(err, "[SessionService.Logout] remove token")
		}
		return nil
	})
}

// ChangePassword checks the current password, applies the password policy to
// the new one and signs the user out everywhere.
func (s *SessionService) ChangePassword(ctx context.Context, userID, current, next, confirm string) error {
	current = s.validator.Sanitize(current)
	next = s.validator.Sanitize(next)
	confirm = s.validator.Sanitize(confirm)

	switch {
	case current == "":
		return &ValidationError{Field: FieldCurrentPassword, Reason: ReasonCurrentPasswordEmpty}
	case next == "":
		return &ValidationError{Field: FieldPassword, Reason: ReasonPasswordMandatory}
	case confirm == "":
		return &ValidationError{Field: FieldConfirmPassword, Reason: ReasonConfirmMandatory}
	case next != confirm:
		return &ValidationError{Field: FieldConfirmPassword, Reason: ReasonPasswordsDontMatch}
	}
	if err := s.validator.ValidatePassword(next); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "[SessionService.ChangePassword] find user")
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return ErrBadCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return errors.Wrap(err, "[SessionService.ChangePassword] hash password")
	}

	return s.withUserLock(ctx, userID, func(ctx context.Context) error {
		return errors.Wrap(s.users.UpdatePassword(ctx, userID, hash), "[SessionService.ChangePassword] update")
	})
}

// DeleteAccount removes the user and with it every refresh token.
func (s *SessionService) DeleteAccount(ctx context.Context, userID string) error {
	return s.withUserLock(ctx, userID, func(ctx context.Context) error {
		return errors.Wrap(s.users.DeleteUser(ctx, userID), "[SessionService.DeleteAccount]")
	})
}

func (s *SessionService) Profile(ctx context.Context, userID string) (users.Profile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return users.Profile{}, errors.Wrap(err, "[SessionService.Profile]")
	}
	return user.Profile(), nil
}

// GrantRole adds role to the account registered under email. It is a no-op
// when the user already has the role.
func (s *SessionService) GrantRole(ctx context.Context, email string, role users.RoleType) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return errors.Wrap(err, "[SessionService.GrantRole] find user")
	}
	if slices.Contains(user.Roles, role) {
		return nil
	}
	roles := append(slices.Clone(user.Roles), role)
	return errors.Wrap(s.users.SetRoles(ctx, user.ID, roles), "[SessionService.GrantRole] set roles")
}

// issue mints a new pair and stores tokens plus the new refresh token.
// Must be called holding the user's lock.
func (s *SessionService) issue(ctx context.Context, user *users.User, tokens []string) (*Session, error) {
	access, err := s.codec.Mint(token.Access, token.Payload{UserID: user.ID, Roles: user.RoleNames()})
	if err != nil {
		return nil, errors.Wrap(err, "[SessionService.issue] access token")
	}
	refresh, err := s.codec.Mint(token.Refresh, token.Payload{UserID: user.ID})
	if err != nil {
		return nil, errors.Wrap(err, "[SessionService.issue] refresh token")
	}

	next := append(slices.Clone(tokens), refresh)
	if err := s.users.ReplaceRefreshTokens(ctx, user.ID, next); err != nil {
		return nil, errors.Wrap(err, "[SessionService.issue] store refresh token")
	}

	return &Session{
		User:         user.Profile(),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// revokeOnReuse handles a refresh token that no user holds. When its payload
// names a user, all of that user's sessions are ended.
func (s *SessionService) revokeOnReuse(ctx context.Context, presented string) error {
	payload, ok := token.DecodeUnsafe(presented)
	if !ok {
		return ErrUnauthorized
	}
	return s.withUserLock(ctx, payload.UserID, func(ctx context.Context) error {
		return s.revokeAll(ctx, payload.UserID)
	})
}

// revokeAll empties the user's refresh token set and reports ErrUnauthorized.
// Must be called holding the user's lock.
func (s *SessionService) revokeAll(ctx context.Context, userID string) error {
	err := s.users.ReplaceRefreshTokens(ctx, userID, nil)
	switch {
	case errors.Is(err, users.ErrNotFound):
		return ErrUnauthorized
	case err != nil:
		return errors.Wrap(err, "[SessionService.revokeAll]")
	}
	log.Warn().Str("userId", userID).Msg("refresh token reuse detected, all sessions revoked")
	return ErrUnauthorized
}

func (s *SessionService) withUserLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	unlock, err := s.locker.Lock(lockCtx, userID)
	cancel()
	if err != nil {
		return errors.Wrap(err, "[SessionService] lock user")
	}
	defer unlock()
	return fn(ctx)
}
