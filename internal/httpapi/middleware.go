package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"resumehub/internal/domain/models"
	"resumehub/internal/lib/sl"
	"resumehub/internal/services/auth"
)

// CookieName carries the bearer credential, literally "Bearer <token>".
const CookieName = "authorization"

const bearerScheme = "Bearer"

// Authenticator is the single contract the downstream handlers depend on;
// they never touch the token machinery directly.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (identity *models.Identity, reissued string, err error)
}

// SetCredentialCookie stores the access token as the bearer credential.
func SetCredentialCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    bearerScheme + " " + token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireAuth authenticates the request and injects the identity into the
// context. Every rejection path responds immediately; the downstream
// handler only ever runs with a verified identity. A token inside the
// grace window gets a fresh cookie plus a 401 asking the caller to retry.
func RequireAuth(logger *slog.Logger, authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CookieName)
			if err != nil {
				writeMessage(w, http.StatusBadRequest, "authorization token is missing")
				return
			}

			scheme, token, found := strings.Cut(cookie.Value, " ")
			if !found || scheme != bearerScheme {
				writeMessage(w, http.StatusBadRequest, "token type is not Bearer")
				return
			}

			identity, reissued, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenReissued):
					SetCredentialCookie(w, reissued)
					writeMessage(w, http.StatusUnauthorized, "access token reissued, retry the request")
				case errors.Is(err, auth.ErrTokenExpired):
					writeMessage(w, http.StatusUnauthorized, "token has expired")
				case errors.Is(err, auth.ErrTokenMalformed):
					writeMessage(w, http.StatusUnauthorized, "token has been tampered with")
				case errors.Is(err, auth.ErrUserNotFound):
					writeMessage(w, http.StatusBadRequest, "token subject no longer exists")
				default:
					logger.Error("authentication failed", sl.Err(err))
					writeMessage(w, http.StatusInternalServerError, "internal error")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), *identity)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LogRequests logs one line per request with a generated request id.
func LogRequests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("request",
				slog.String("requestID", uuid.NewString()),
				slog.String("method", r.Method),
				slog.String("url", r.URL.String()),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
