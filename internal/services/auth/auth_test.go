package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumehub/internal/domain/models"
	jwtlib "resumehub/internal/lib/jwt"
	"resumehub/internal/storage"
)

const (
	testAccessSecret  = "test-access-secret"
	testRefreshSecret = "test-refresh-secret"
)

// fakeStorage implements UserSaver, UserProvider and RefreshTokenLedger
// in memory with the same uniqueness semantics the real backends enforce.
type fakeStorage struct {
	mu         sync.Mutex
	nextID     int64
	users      map[int64]*models.User
	byEmail    map[string]int64
	byClientID map[string]int64
	tokens     map[int64]*models.RefreshToken
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		users:      make(map[int64]*models.User),
		byEmail:    make(map[string]int64),
		byClientID: make(map[string]int64),
		tokens:     make(map[int64]*models.RefreshToken),
	}
}

func (f *fakeStorage) SaveUser(_ context.Context, email string, passHash []byte, clientID string, _ models.UserInfo) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if email != "" {
		if _, ok := f.byEmail[email]; ok {
			return 0, storage.ErrUserAlreadyExists
		}
	}
	if clientID != "" {
		if _, ok := f.byClientID[clientID]; ok {
			return 0, storage.ErrUserAlreadyExists
		}
	}

	f.nextID++
	user := &models.User{ID: f.nextID, Email: email, PassHash: passHash, ClientID: clientID}
	f.users[user.ID] = user
	if email != "" {
		f.byEmail[email] = user.ID
	}
	if clientID != "" {
		f.byClientID[clientID] = user.ID
	}
	return user.ID, nil
}

func (f *fakeStorage) UserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byEmail[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return f.users[id], nil
}

func (f *fakeStorage) UserByClientID(_ context.Context, clientID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byClientID[clientID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return f.users[id], nil
}

func (f *fakeStorage) UserByID(_ context.Context, userID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeStorage) RefreshToken(_ context.Context, userID int64) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.tokens[userID]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStorage) SaveRefreshToken(_ context.Context, userID int64, token string, ip string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[userID]; ok {
		return nil, storage.ErrTokenExists
	}
	now := time.Now()
	rec := &models.RefreshToken{UserID: userID, Token: token, IP: ip, CreatedAt: now, UpdatedAt: now}
	f.tokens[userID] = rec
	cp := *rec
	return &cp, nil
}

func (f *fakeStorage) RotateRefreshToken(_ context.Context, userID int64, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.tokens[userID]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	rec.Token = token
	rec.UpdatedAt = time.Now()
	cp := *rec
	return &cp, nil
}

func (f *fakeStorage) tokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuth(st *fakeStorage, accessTTL, refreshTTL, grace time.Duration) *Auth {
	issuer := jwtlib.NewIssuer(testAccessSecret, testRefreshSecret, accessTTL, refreshTTL)
	return New(discardLogger(), st, st, st, issuer, grace)
}

func signUpUser(t *testing.T, a *Auth, email, password string) int64 {
	t.Helper()
	userID, err := a.SignUp(context.Background(), SignUpParams{
		Email:    email,
		Password: password,
		Name:     gofakeit.Name(),
		Age:      gofakeit.Number(20, 60),
		Gender:   "F",
	})
	require.NoError(t, err)
	return userID
}

func TestSignUpAndSignIn(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, 12*time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	email := gofakeit.Email()
	password := gofakeit.Password(true, true, true, false, false, 10)
	userID := signUpUser(t, a, email, password)

	token, err := a.SignIn(ctx, SignInParams{Email: email, Password: password, IP: "127.0.0.1"})
	require.NoError(t, err)

	issuer := jwtlib.NewIssuer(testAccessSecret, testRefreshSecret, 12*time.Hour, 7*24*time.Hour)
	claims, err := issuer.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)

	// First sign-in creates the one-and-only ledger record.
	rec, err := st.RefreshToken(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", rec.IP)
	assert.Equal(t, 1, st.tokenCount())
}

func TestSignUpDuplicateEmail(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, 12*time.Hour, 7*24*time.Hour, 5*time.Minute)

	email := gofakeit.Email()
	signUpUser(t, a, email, "secret1")

	_, err := a.SignUp(context.Background(), SignUpParams{
		Email:    email,
		Password: "secret2",
		Name:     gofakeit.Name(),
	})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestSignUpIdentityInvariant(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, 12*time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	_, err := a.SignUp(ctx, SignUpParams{Name: "no identity"})
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	_, err = a.SignUp(ctx, SignUpParams{
		Email:    gofakeit.Email(),
		Password: "secret1",
		ClientID: "client-1",
		Name:     "both identities",
	})
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestSignUpClientIdentity(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, 12*time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	_, err := a.SignUp(ctx, SignUpParams{ClientID: "client-1", Name: gofakeit.Name()})
	require.NoError(t, err)

	// Client-id sign-in needs no password.
	token, err := a.SignIn(ctx, SignInParams{ClientID: "client-1", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestSignInUnknownIdentityTouchesNothing(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, 12*time.Hour, 7*24*time.Hour, 5*time.Minute)

	_, err := a.SignIn(context.Background(), SignInParams{
		Email:    "nobody@nowhere.dev",
		Password: "whatever",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 0, st.tokenCount(), "no orphan refresh record may be created")
}

func TestSignInWrongPassword(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, 12*time.Hour, 7*24*time.Hour, 5*time.Minute)

	email := gofakeit.Email()
	signUpUser(t, a, email, "correct-password")

	_, err := a.SignIn(context.Background(), SignInParams{Email: email, Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 0, st.tokenCount())
}

func TestSignInKeepsLiveRefreshRecord(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, 12*time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	email := gofakeit.Email()
	password := "secret1"
	userID := signUpUser(t, a, email, password)

	_, err := a.SignIn(ctx, SignInParams{Email: email, Password: password, IP: "127.0.0.1"})
	require.NoError(t, err)
	first, err := st.RefreshToken(ctx, userID)
	require.NoError(t, err)

	_, err = a.SignIn(ctx, SignInParams{Email: email, Password: password, IP: "127.0.0.2"})
	require.NoError(t, err)
	second, err := st.RefreshToken(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, first.Token, second.Token, "a live refresh record is not rewritten")
	assert.Equal(t, "127.0.0.1", second.IP)
}

func TestSignInRotatesExpiredRefreshRecord(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, 12*time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	email := gofakeit.Email()
	password := "secret1"
	userID := signUpUser(t, a, email, password)

	// Seed the ledger with an already-expired refresh token.
	expiredIssuer := jwtlib.NewIssuer(testAccessSecret, testRefreshSecret, 12*time.Hour, -time.Minute)
	expired, err := expiredIssuer.NewRefreshToken(userID)
	require.NoError(t, err)
	_, err = st.SaveRefreshToken(ctx, userID, expired, "127.0.0.1")
	require.NoError(t, err)

	_, err = a.SignIn(ctx, SignInParams{Email: email, Password: password, IP: "127.0.0.9"})
	require.NoError(t, err)

	rec, err := st.RefreshToken(ctx, userID)
	require.NoError(t, err)
	assert.NotEqual(t, expired, rec.Token, "expired record must be rotated in place")
	assert.Equal(t, "127.0.0.1", rec.IP, "rotation preserves creation metadata")
	assert.Equal(t, 1, st.tokenCount())

	liveIssuer := jwtlib.NewIssuer(testAccessSecret, testRefreshSecret, 12*time.Hour, 7*24*time.Hour)
	_, err = liveIssuer.ParseRefreshToken(rec.Token)
	assert.NoError(t, err)
}

func TestConcurrentFirstSignInOneRecord(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, 12*time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	email := gofakeit.Email()
	password := "secret1"
	userID := signUpUser(t, a, email, password)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.SignIn(ctx, SignInParams{Email: email, Password: password, IP: "127.0.0.1"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err, "create-race losers must adopt the winner's record")
	}
	assert.Equal(t, 1, st.tokenCount())

	_, err := st.RefreshToken(ctx, userID)
	assert.NoError(t, err)
}

func TestAuthenticateValidToken(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, 12*time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	email := gofakeit.Email()
	userID := signUpUser(t, a, email, "secret1")

	token, err := a.SignIn(ctx, SignInParams{Email: email, Password: "secret1"})
	require.NoError(t, err)

	identity, reissued, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Empty(t, reissued)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, email, identity.Email)
}

func TestAuthenticateGraceWindowReissues(t *testing.T) {
	st := newFakeStorage()
	// Service TTL is an hour; grace is five minutes.
	a := newTestAuth(st, time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	email := gofakeit.Email()
	userID := signUpUser(t, a, email, "secret1")
	_, err := a.SignIn(ctx, SignInParams{Email: email, Password: "secret1"})
	require.NoError(t, err)

	// A token expiring in two minutes is inside the five-minute window.
	nearExpiry := jwtlib.NewIssuer(testAccessSecret, testRefreshSecret, 2*time.Minute, 7*24*time.Hour)
	oldToken, err := nearExpiry.NewAccessToken(userID)
	require.NoError(t, err)

	identity, reissued, err := a.Authenticate(ctx, oldToken)
	require.ErrorIs(t, err, ErrTokenReissued)
	assert.Nil(t, identity, "the request carrying the old token is not authorized")
	require.NotEmpty(t, reissued)
	assert.NotEqual(t, oldToken, reissued)

	// The retry with the fresh token is authorized.
	identity, reissued2, err := a.Authenticate(ctx, reissued)
	require.NoError(t, err)
	assert.Empty(t, reissued2)
	assert.Equal(t, userID, identity.UserID)
}

func TestAuthenticateGraceWindowNoRecordProceeds(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	email := gofakeit.Email()
	userID := signUpUser(t, a, email, "secret1")

	// No sign-in happened, so the ledger is empty; a near-expiry token is
	// still technically valid and must authorize as-is.
	nearExpiry := jwtlib.NewIssuer(testAccessSecret, testRefreshSecret, 2*time.Minute, 7*24*time.Hour)
	token, err := nearExpiry.NewAccessToken(userID)
	require.NoError(t, err)

	identity, reissued, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Empty(t, reissued)
	assert.Equal(t, userID, identity.UserID)
}

func TestAuthenticateGraceWindowDeadRefreshProceeds(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	email := gofakeit.Email()
	userID := signUpUser(t, a, email, "secret1")

	expiredIssuer := jwtlib.NewIssuer(testAccessSecret, testRefreshSecret, 12*time.Hour, -time.Minute)
	expiredRefresh, err := expiredIssuer.NewRefreshToken(userID)
	require.NoError(t, err)
	_, err = st.SaveRefreshToken(ctx, userID, expiredRefresh, "127.0.0.1")
	require.NoError(t, err)

	nearExpiry := jwtlib.NewIssuer(testAccessSecret, testRefreshSecret, 2*time.Minute, 7*24*time.Hour)
	token, err := nearExpiry.NewAccessToken(userID)
	require.NoError(t, err)

	identity, reissued, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Empty(t, reissued)
	assert.Equal(t, userID, identity.UserID)
}

func TestAuthenticateExpiredBeyondGrace(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	email := gofakeit.Email()
	userID := signUpUser(t, a, email, "secret1")
	_, err := a.SignIn(ctx, SignInParams{Email: email, Password: "secret1"})
	require.NoError(t, err)

	expiredIssuer := jwtlib.NewIssuer(testAccessSecret, testRefreshSecret, -time.Minute, 7*24*time.Hour)
	expired, err := expiredIssuer.NewAccessToken(userID)
	require.NoError(t, err)

	_, reissued, err := a.Authenticate(ctx, expired)
	assert.ErrorIs(t, err, ErrTokenExpired, "no silent refresh beyond the grace window")
	assert.Empty(t, reissued)
}

func TestAuthenticateTamperedToken(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, time.Hour, 7*24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	email := gofakeit.Email()
	signUpUser(t, a, email, "secret1")
	token, err := a.SignIn(ctx, SignInParams{Email: email, Password: "secret1"})
	require.NoError(t, err)

	raw := []byte(token)
	raw[len(raw)/2] ^= 0x01

	_, _, err = a.Authenticate(ctx, string(raw))
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestAuthenticateUnknownSubject(t *testing.T) {
	st := newFakeStorage()
	a := newTestAuth(st, time.Hour, 7*24*time.Hour, 5*time.Minute)

	issuer := jwtlib.NewIssuer(testAccessSecret, testRefreshSecret, time.Hour, 7*24*time.Hour)
	token, err := issuer.NewAccessToken(999)
	require.NoError(t, err)

	_, _, err = a.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
