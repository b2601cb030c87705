package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"resumehub/internal/domain/models"
	jwtlib "resumehub/internal/lib/jwt"
	"resumehub/internal/lib/sl"
	"resumehub/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidIdentity    = errors.New("exactly one of email or client id must be set")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenExpired       = errors.New("access token expired")
	ErrTokenMalformed     = errors.New("access token malformed")
	// ErrTokenReissued signals that the presented token fell inside the
	// grace window and a fresh one was minted. The request it came with is
	// NOT authorized; the caller must retry with the new token.
	ErrTokenReissued = errors.New("access token reissued")
)

type Auth struct {
	logger       *slog.Logger
	userSaver    UserSaver
	userProvider UserProvider
	ledger       RefreshTokenLedger
	issuer       *jwtlib.Issuer
	graceWindow  time.Duration
}

type UserSaver interface {
	SaveUser(
		ctx context.Context,
		email string,
		passHash []byte,
		clientID string,
		info models.UserInfo,
	) (uid int64, err error)
}

type UserProvider interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByClientID(ctx context.Context, clientID string) (*models.User, error)
	UserByID(ctx context.Context, userID int64) (*models.User, error)
}

// RefreshTokenLedger is the single source of truth for refresh validity.
// Save must be a conditional insert and Rotate a single atomic replace;
// the service never re-checks uniqueness in application code.
type RefreshTokenLedger interface {
	RefreshToken(ctx context.Context, userID int64) (*models.RefreshToken, error)
	SaveRefreshToken(ctx context.Context, userID int64, token string, ip string) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, userID int64, token string) (*models.RefreshToken, error)
}

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	ledger RefreshTokenLedger,
	issuer *jwtlib.Issuer,
	graceWindow time.Duration,
) *Auth {
	return &Auth{
		logger:       logger,
		userSaver:    userSaver,
		userProvider: userProvider,
		ledger:       ledger,
		issuer:       issuer,
		graceWindow:  graceWindow,
	}
}

type SignUpParams struct {
	Email    string
	Password string
	ClientID string
	Name     string
	Age      int
	Gender   string
}

type SignInParams struct {
	Email    string
	Password string
	ClientID string
	IP       string
}

// SignUp registers a new account with its profile.
func (a *Auth) SignUp(ctx context.Context, in SignUpParams) (int64, error) {
	const op = "auth.SignUp"
	log := a.logger.With(slog.String("op", op))

	if (in.Email == "") == (in.ClientID == "") {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidIdentity)
	}

	var passHash []byte
	if in.ClientID == "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Error("failed to generate password hash", sl.Err(err))
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		passHash = hash
	}

	info := models.UserInfo{Name: in.Name, Age: in.Age, Gender: in.Gender}
	userID, err := a.userSaver.SaveUser(ctx, in.Email, passHash, in.ClientID, info)
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			log.Warn("user already exists", sl.Err(err))
			return 0, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("userID", userID))

	return userID, nil
}

// SignIn authenticates a user and returns a fresh access token. The refresh
// ledger is touched only after the identity is verified: a missing record is
// created, an expired one rotated in place, a live one left untouched.
func (a *Auth) SignIn(ctx context.Context, in SignInParams) (string, error) {
	const op = "auth.SignIn"
	log := a.logger.With(slog.String("op", op))

	user, err := a.resolveUser(ctx, in)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("unknown identity", sl.Err(err))
			return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if user.ClientID == "" {
		if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(in.Password)); err != nil {
			log.Warn("credential mismatch", slog.Int64("userID", user.ID))
			return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
	}

	if err := a.ensureRefreshRecord(ctx, user.ID, in.IP); err != nil {
		log.Error("failed to ensure refresh record", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := a.issuer.NewAccessToken(user.ID)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user signed in", slog.Int64("userID", user.ID))

	return accessToken, nil
}

func (a *Auth) resolveUser(ctx context.Context, in SignInParams) (*models.User, error) {
	if in.ClientID != "" {
		return a.userProvider.UserByClientID(ctx, in.ClientID)
	}
	return a.userProvider.UserByEmail(ctx, in.Email)
}

// ensureRefreshRecord brings the user's ledger entry to a live state.
// Concurrent first sign-ins race on the conditional insert; the loser
// adopts the winner's record instead of failing the client.
func (a *Auth) ensureRefreshRecord(ctx context.Context, userID int64, ip string) error {
	rec, err := a.ledger.RefreshToken(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrTokenNotFound) {
			return err
		}
		return a.createRefreshRecord(ctx, userID, ip)
	}

	if _, err := a.issuer.ParseRefreshToken(rec.Token); err != nil {
		// Expired, or unverifiable for any reason. Either way the stored
		// token can no longer justify a refresh, so replace it in place.
		if _, err := a.rotateRefreshRecord(ctx, userID); err != nil {
			return err
		}
		a.logger.Info("refresh token rotated", slog.Int64("userID", userID))
	}
	return nil
}

func (a *Auth) createRefreshRecord(ctx context.Context, userID int64, ip string) error {
	refreshToken, err := a.issuer.NewRefreshToken(userID)
	if err != nil {
		return err
	}

	if _, err := a.ledger.SaveRefreshToken(ctx, userID, refreshToken, ip); err != nil {
		if errors.Is(err, storage.ErrTokenExists) {
			// Lost the create race; the winner's record is the live one.
			_, err = a.ledger.RefreshToken(ctx, userID)
		}
		return err
	}
	return nil
}

func (a *Auth) rotateRefreshRecord(ctx context.Context, userID int64) (*models.RefreshToken, error) {
	refreshToken, err := a.issuer.NewRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return a.ledger.RotateRefreshToken(ctx, userID, refreshToken)
}

// Authenticate runs the per-request token state machine and returns the
// verified identity. When the token is inside the grace window and the
// ledger holds a live refresh record, it mints a replacement access token,
// returns it as reissued and fails with ErrTokenReissued: the old token does
// not authorize the current request.
func (a *Auth) Authenticate(ctx context.Context, token string) (identity *models.Identity, reissued string, err error) {
	const op = "auth.Authenticate"
	log := a.logger.With(slog.String("op", op))

	claims, err := a.issuer.ParseAccessToken(token)
	if err != nil {
		switch {
		case errors.Is(err, jwtlib.ErrTokenExpired):
			log.Warn("access token expired")
			return nil, "", fmt.Errorf("%s: %w", op, ErrTokenExpired)
		default:
			log.Warn("access token malformed")
			return nil, "", fmt.Errorf("%s: %w", op, ErrTokenMalformed)
		}
	}

	// The subject may have been deleted since the token was minted.
	user, err := a.userProvider.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("token subject no longer exists", slog.Int64("userID", claims.UserID))
			return nil, "", fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	if time.Now().After(claims.ExpiresAt.Add(-a.graceWindow)) {
		newToken, ok, err := a.tryReissue(ctx, user.ID)
		if err != nil {
			log.Error("failed to reissue access token", sl.Err(err))
			return nil, "", fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			log.Info("access token reissued", slog.Int64("userID", user.ID))
			return nil, newToken, fmt.Errorf("%s: %w", op, ErrTokenReissued)
		}
		// No live refresh record: creation is sign-in's job, so proceed
		// with the still-valid access token.
	}

	return &models.Identity{UserID: user.ID, Email: user.Email}, "", nil
}

// tryReissue mints a replacement access token if the ledger holds a record
// whose refresh token still verifies. ok is false when no refresh is
// possible; that is not an error.
func (a *Auth) tryReissue(ctx context.Context, userID int64) (token string, ok bool, err error) {
	rec, err := a.ledger.RefreshToken(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	if _, err := a.issuer.ParseRefreshToken(rec.Token); err != nil {
		return "", false, nil
	}

	newToken, err := a.issuer.NewAccessToken(userID)
	if err != nil {
		return "", false, err
	}
	return newToken, true, nil
}
