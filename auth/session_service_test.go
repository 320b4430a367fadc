package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/carnotes-server/auth"
	"github.com/jrsteele09/carnotes-server/token"
	"github.com/jrsteele09/carnotes-server/users"
	fakeuserrepo "github.com/jrsteele09/carnotes-server/users/repofake"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "a@x.com"
	testPassword = "Abcdef123456!"
	testUserName = "alice"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	repo    *fakeuserrepo.FakeUserRepo
	codec   *token.Codec
	clock   *testClock
	service *auth.SessionService
}

func setupTestFixture(t *testing.T, opts ...auth.SessionServiceOption) *testFixture {
	t.Helper()

	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	repo := fakeuserrepo.NewFakeUserRepo()
	codec := token.NewCodec(
		token.NewHMACSigner("access-secret"),
		token.NewHMACSigner("refresh-secret"),
		token.WithNowFunc(clock.Now),
	)

	opts = append([]auth.SessionServiceOption{auth.WithHasher(users.NewBcryptHasher(bcrypt.MinCost))}, opts...)
	service, err := auth.NewSessionService(repo, codec, opts...)
	require.NoError(t, err)

	return &testFixture{repo: repo, codec: codec, clock: clock, service: service}
}

func (f *testFixture) register(t *testing.T) {
	t.Helper()
	require.NoError(t, f.service.Register(context.Background(), auth.RegisterInput{
		Email:           testEmail,
		Password:        testPassword,
		ConfirmPassword: testPassword,
		UserName:        testUserName,
	}))
}

func (f *testFixture) storedTokens(t *testing.T) []string {
	t.Helper()
	u, err := f.repo.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	return u.RefreshTokens
}

func TestNewSessionService_RequiresDependencies(t *testing.T) {
	_, err := auth.NewSessionService(nil, token.NewCodec(nil, nil))
	require.Error(t, err)
	_, err = auth.NewSessionService(fakeuserrepo.NewFakeUserRepo(), nil)
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.register(t)

	u, err := f.repo.FindByEmail(ctx, testEmail)
	require.NoError(t, err)
	require.Equal(t, testUserName, u.Username)
	require.NotEqual(t, testPassword, u.PasswordHash)
	require.Empty(t, u.RefreshTokens)
	require.Equal(t, []users.RoleType{users.RoleUser}, u.Roles)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)

	err := f.service.Register(context.Background(), auth.RegisterInput{
		Email:           "A@X.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		UserName:        "alice2",
	})
	require.ErrorIs(t, err, auth.ErrConflict)
}

func TestRegister_ShortPasswordIsRejected(t *testing.T) {
	f := setupTestFixture(t)
	err := f.service.Register(context.Background(), auth.RegisterInput{
		Email:           testEmail,
		Password:        "Abc123!",
		ConfirmPassword: "Abc123!",
		UserName:        testUserName,
	})
	requireReason(t, err, auth.FieldPassword, auth.ReasonPasswordTooShort)

	_, err = f.repo.FindByEmail(context.Background(), testEmail)
	require.ErrorIs(t, err, users.ErrNotFound)
}

func TestRegister_TrimsInput(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.service.Register(context.Background(), auth.RegisterInput{
		Email:           "  a@x.com ",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		UserName:        " alice ",
	}))

	u, err := f.repo.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.Equal(t, testEmail, u.Email)
}

func TestRegister_RejectsMarkupUserName(t *testing.T) {
	f := setupTestFixture(t)
	err := f.service.Register(context.Background(), auth.RegisterInput{
		Email:           testEmail,
		Password:        testPassword,
		ConfirmPassword: testPassword,
		UserName:        "<b>alice</b>",
	})
	requireReason(t, err, auth.FieldUserName, auth.ReasonUserNameInvalid)
}

func TestRegister_CredentialsKeptAsTyped(t *testing.T) {
	ctx := context.Background()
	for _, pw := range []string{"Abcdef12345&", "Abcdefgh1<Zz!"} {
		t.Run(pw, func(t *testing.T) {
			f := setupTestFixture(t)
			const email = "o'brien@example.com"
			require.NoError(t, f.service.Register(ctx, auth.RegisterInput{
				Email:           email,
				Password:        pw,
				ConfirmPassword: pw,
				UserName:        testUserName,
			}))

			u, err := f.repo.FindByEmail(ctx, email)
			require.NoError(t, err)
			require.Equal(t, email, u.Email)
			require.True(t, users.CheckPasswordHash(pw, u.PasswordHash))

			_, err = f.service.Login(ctx, email, pw, "")
			require.NoError(t, err)

			_, err = f.service.Login(ctx, email, "Abcdef12345", "")
			require.ErrorIs(t, err, auth.ErrBadCredentials)
		})
	}
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)

	s, err := f.service.Login(context.Background(), testEmail, testPassword, "")
	require.NoError(t, err)
	require.NotEmpty(t, s.AccessToken)
	require.NotEmpty(t, s.RefreshToken)
	require.Equal(t, testUserName, s.User.UserName)
	require.Equal(t, []string{s.RefreshToken}, f.storedTokens(t))

	p, err := f.codec.Verify(token.Access, s.AccessToken)
	require.NoError(t, err)
	require.Equal(t, s.User.UserID, p.UserID)
	require.Equal(t, []string{"user"}, p.Roles)
}

func TestLogin_Errors(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	_, err := f.service.Login(ctx, "nobody@x.com", testPassword, "")
	require.ErrorIs(t, err, auth.ErrNoAccount)

	_, err = f.service.Login(ctx, testEmail, "Wrong123456!!", "")
	require.ErrorIs(t, err, auth.ErrBadCredentials)

	_, err = f.service.Login(ctx, "", testPassword, "")
	requireReason(t, err, auth.FieldEmail, auth.ReasonEmailRequired)

	_, err = f.service.Login(ctx, testEmail, "", "")
	requireReason(t, err, auth.FieldPassword, auth.ReasonPasswordRequired)

	require.Empty(t, f.storedTokens(t))
}

func TestLogin_MultipleDevicesAndRelogin(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	laptop, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	phone, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{laptop.RefreshToken, phone.RefreshToken}, f.storedTokens(t))

	// logging in again on the laptop without logging out replaces its token
	laptop2, err := f.service.Login(ctx, testEmail, testPassword, laptop.RefreshToken)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{phone.RefreshToken, laptop2.RefreshToken}, f.storedTokens(t))
}

func TestRefresh_Rotates(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	s1, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	s2, err := f.service.Refresh(ctx, s1.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, s1.RefreshToken, s2.RefreshToken)
	require.Equal(t, []string{s2.RefreshToken}, f.storedTokens(t))

	s3, err := f.service.Refresh(ctx, s2.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, []string{s3.RefreshToken}, f.storedTokens(t))
	require.Equal(t, s1.User.UserID, s3.User.UserID)
}

func TestRefresh_ReuseRevokesEverySession(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	t1, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	other, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	t2, err := f.service.Refresh(ctx, t1.RefreshToken)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{other.RefreshToken, t2.RefreshToken}, f.storedTokens(t))

	_, err = f.service.Refresh(ctx, t1.RefreshToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	require.Empty(t, f.storedTokens(t))

	_, err = f.service.Refresh(ctx, t2.RefreshToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = f.service.Refresh(ctx, other.RefreshToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestRefresh_ConcreteScenario(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	login, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	t1 := login.RefreshToken

	refreshed, err := f.service.Refresh(ctx, t1)
	require.NoError(t, err)
	t2 := refreshed.RefreshToken
	require.NotEmpty(t, refreshed.AccessToken)
	require.Equal(t, []string{t2}, f.storedTokens(t))

	_, err = f.service.Refresh(ctx, t1)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	require.Empty(t, f.storedTokens(t))
}

func TestRefresh_ExpiredTokenIsBurned(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	s, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	keep, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)

	_, err = f.service.Refresh(ctx, s.RefreshToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	require.Equal(t, []string{keep.RefreshToken}, f.storedTokens(t))
}

func TestRefresh_TokenForAnotherUserIsBurned(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	alice, err := f.repo.FindByEmail(ctx, testEmail)
	require.NoError(t, err)

	// a validly signed token naming someone else, planted in alice's set
	foreign, err := f.codec.Mint(token.Refresh, token.Payload{UserID: "someone-else"})
	require.NoError(t, err)
	require.NoError(t, f.repo.ReplaceRefreshTokens(ctx, alice.ID, []string{foreign}))

	_, err = f.service.Refresh(ctx, foreign)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	require.Empty(t, f.storedTokens(t))
}

func TestRefresh_MissingAndGarbage(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	s, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	_, err = f.service.Refresh(ctx, "")
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = f.service.Refresh(ctx, "garbage")
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	// an unknown token naming an unknown user changes nothing
	ghost, err := f.codec.Mint(token.Refresh, token.Payload{UserID: "ghost"})
	require.NoError(t, err)
	_, err = f.service.Refresh(ctx, ghost)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	require.Equal(t, []string{s.RefreshToken}, f.storedTokens(t))
}

func TestRefresh_ConcurrentRedemptionIssuesOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	s, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.Refresh(ctx, s.RefreshToken); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, successes, 1)
	require.LessOrEqual(t, len(f.storedTokens(t)), 1)
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	require.NoError(t, f.service.Logout(ctx, ""))
	require.NoError(t, f.service.Logout(ctx, "garbage"))

	s, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	other, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, s.RefreshToken))
	require.Equal(t, []string{other.RefreshToken}, f.storedTokens(t))

	// the logged out token is unknown now; replaying it counts as reuse
	_, err = f.service.Refresh(ctx, s.RefreshToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	require.NoError(t, f.service.Logout(ctx, s.RefreshToken))
}

func TestChangePassword(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	s, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	userID := s.User.UserID

	err = f.service.ChangePassword(ctx, userID, "Wrong123456!!", "Newpassword12!", "Newpassword12!")
	require.ErrorIs(t, err, auth.ErrBadCredentials)

	err = f.service.ChangePassword(ctx, userID, testPassword, "short", "short")
	requireReason(t, err, auth.FieldPassword, auth.ReasonPasswordTooShort)

	err = f.service.ChangePassword(ctx, userID, testPassword, "Newpassword12!", "Newpassword12?")
	requireReason(t, err, auth.FieldConfirmPassword, auth.ReasonPasswordsDontMatch)

	require.NoError(t, f.service.ChangePassword(ctx, userID, testPassword, "Newpassword12!", "Newpassword12!"))
	require.Empty(t, f.storedTokens(t))

	_, err = f.service.Login(ctx, testEmail, testPassword, "")
	require.ErrorIs(t, err, auth.ErrBadCredentials)
	_, err = f.service.Login(ctx, testEmail, "Newpassword12!", "")
	require.NoError(t, err)
}

func TestDeleteAccountAndProfile(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	s, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	p, err := f.service.Profile(ctx, s.User.UserID)
	require.NoError(t, err)
	require.Equal(t, testEmail, p.Email)

	require.NoError(t, f.service.DeleteAccount(ctx, s.User.UserID))
	_, err = f.service.Profile(ctx, s.User.UserID)
	require.ErrorIs(t, err, users.ErrNotFound)
	require.ErrorIs(t, f.service.DeleteAccount(ctx, s.User.UserID), users.ErrNotFound)

	_, err = f.service.Refresh(ctx, s.RefreshToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestGrantRole(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	ctx := context.Background()

	require.NoError(t, f.service.GrantRole(ctx, testEmail, users.RoleAdmin))
	require.NoError(t, f.service.GrantRole(ctx, testEmail, users.RoleAdmin))

	s, err := f.service.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	p, err := f.codec.Verify(token.Access, s.AccessToken)
	require.NoError(t, err)
	require.Equal(t, []string{"user", "admin"}, p.Roles)

	require.ErrorIs(t, f.service.GrantRole(ctx, "nobody@x.com", users.RoleAdmin), users.ErrNotFound)
}

type failingRepo struct {
	*fakeuserrepo.FakeUserRepo
	err error
}

func (r *failingRepo) ReplaceRefreshTokens(context.Context, string, []string) error {
	return r.err
}

func TestStoreFailuresPropagate(t *testing.T) {
	clock := &testClock{now: time.Now()}
	inner := fakeuserrepo.NewFakeUserRepo()
	repo := &failingRepo{FakeUserRepo: inner, err: errors.New("db down")}
	codec := token.NewCodec(token.NewHMACSigner("a"), token.NewHMACSigner("r"), token.WithNowFunc(clock.Now))
	service, err := auth.NewSessionService(repo, codec, auth.WithHasher(users.NewBcryptHasher(bcrypt.MinCost)))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, service.Register(ctx, auth.RegisterInput{
		Email: testEmail, Password: testPassword, ConfirmPassword: testPassword, UserName: testUserName,
	}))

	_, err = service.Login(ctx, testEmail, testPassword, "")
	require.ErrorContains(t, err, "db down")
	var authErr *auth.AuthError
	require.False(t, errors.As(err, &authErr))
}

type blockingLocker struct{}

func (blockingLocker) Lock(ctx context.Context, _ string) (func(), error) {
	<-ctx.Done()
	return nil, auth.ErrLockTimeout
}

func TestLockWaitIsBounded(t *testing.T) {
	f := setupTestFixture(t, auth.WithLocker(blockingLocker{}), auth.WithLockWait(20*time.Millisecond))
	f.register(t)

	_, err := f.service.Login(context.Background(), testEmail, testPassword, "")
	require.ErrorIs(t, err, auth.ErrLockTimeout)
}
