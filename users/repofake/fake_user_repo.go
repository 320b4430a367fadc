package fakeuserrepo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/carnotes-server/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

// FakeUserRepo keeps users in memory. Returned users are copies, so callers
// can only change stored state through the Repo methods.
type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // lower-cased email to user id
	tokenIds map[string]string // refresh token to user id
	lock     sync.RWMutex
	nowFunc  func() time.Time
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
		tokenIds: make(map[string]string),
		nowFunc:  time.Now,
	}
}

func (ur *FakeUserRepo) InsertUser(_ context.Context, username, email, passwordHash string) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	key := strings.ToLower(email)
	if _, ok := ur.emailIds[key]; ok {
		return nil, users.ErrDuplicateEmail
	}

	user := &users.User{
		ID:            uuid.New().String(),
		Username:      username,
		Email:         email,
		PasswordHash:  passwordHash,
		Roles:         []users.RoleType{users.RoleUser},
		RefreshTokens: []string{},
		CreatedAt:     ur.nowFunc().UTC(),
	}
	ur.users[user.ID] = user
	ur.emailIds[key] = user.ID
	return user.Clone(), nil
}

func (ur *FakeUserRepo) FindByEmail(_ context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[strings.ToLower(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	return ur.users[id].Clone(), nil
}

func (ur *FakeUserRepo) FindByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return user.Clone(), nil
}

func (ur *FakeUserRepo) FindByRefreshToken(_ context.Context, token string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.tokenIds[token]
	if !ok {
		return nil, users.ErrNotFound
	}
	return ur.users[id].Clone(), nil
}

func (ur *FakeUserRepo) ReplaceRefreshTokens(_ context.Context, userID string, tokens []string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	ur.setTokens(user, tokens)
	return nil
}

func (ur *FakeUserRepo) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	user.PasswordHash = passwordHash
	ur.setTokens(user, nil)
	return nil
}

func (ur *FakeUserRepo) SetRoles(_ context.Context, userID string, roles []users.RoleType) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	user.Roles = append([]users.RoleType(nil), roles...)
	return nil
}

func (ur *FakeUserRepo) DeleteUser(_ context.Context, userID string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	ur.setTokens(user, nil)
	delete(ur.emailIds, strings.ToLower(user.Email))
	delete(ur.users, userID)
	return nil
}

// setTokens must be called with the write lock held.
func (ur *FakeUserRepo) setTokens(user *users.User, tokens []string) {
	for _, t := range user.RefreshTokens {
		delete(ur.tokenIds, t)
	}
	user.RefreshTokens = make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, dup := ur.tokenIds[t]; dup {
			continue
		}
		ur.tokenIds[t] = user.ID
		user.RefreshTokens = append(user.RefreshTokens, t)
	}
}
