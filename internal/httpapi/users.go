package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"resumehub/internal/lib/sl"
	"resumehub/internal/services/auth"
	"resumehub/internal/services/user"
)

type AuthService interface {
	SignUp(ctx context.Context, in auth.SignUpParams) (int64, error)
	SignIn(ctx context.Context, in auth.SignInParams) (string, error)
}

type UserService interface {
	Profile(ctx context.Context, userID int64) (*user.Profile, error)
	UpdateProfile(ctx context.Context, userID int64, patch map[string]any) error
}

type usersHandler struct {
	logger *slog.Logger
	auth   AuthService
	users  UserService
}

type signUpRequest struct {
	Email           string `json:"email"`
	ClientID        string `json:"clientId"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
	Name            string `json:"name"`
	Age             int    `json:"age"`
	Gender          string `json:"gender"`
}

func (h *usersHandler) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ClientID == "" {
		switch {
		case req.Email == "":
			writeMessage(w, http.StatusBadRequest, "email is required")
			return
		case req.Password == "":
			writeMessage(w, http.StatusBadRequest, "password is required")
			return
		case req.PasswordConfirm == "":
			writeMessage(w, http.StatusBadRequest, "password confirmation is required")
			return
		case req.Password != req.PasswordConfirm:
			writeMessage(w, http.StatusBadRequest, "password and confirmation do not match")
			return
		case len(req.Password) < 6:
			writeMessage(w, http.StatusBadRequest, "password must be at least 6 characters")
			return
		}
	}
	if req.Name == "" {
		writeMessage(w, http.StatusBadRequest, "name is required")
		return
	}

	_, err := h.auth.SignUp(r.Context(), auth.SignUpParams{
		Email:    req.Email,
		Password: req.Password,
		ClientID: req.ClientID,
		Name:     req.Name,
		Age:      req.Age,
		Gender:   req.Gender,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserAlreadyExists):
			writeMessage(w, http.StatusConflict, "user already exists")
		case errors.Is(err, auth.ErrInvalidIdentity):
			writeMessage(w, http.StatusBadRequest, "exactly one of email or clientId must be set")
		default:
			h.logger.Error("sign-up failed", sl.Err(err))
			writeMessage(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeMessage(w, http.StatusCreated, "sign-up complete")
}

type signInRequest struct {
	Email    string `json:"email"`
	ClientID string `json:"clientId"`
	Password string `json:"password"`
}

func (h *usersHandler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ClientID == "" {
		if req.Email == "" {
			writeMessage(w, http.StatusBadRequest, "email is required")
			return
		}
		if req.Password == "" {
			writeMessage(w, http.StatusBadRequest, "password is required")
			return
		}
	}

	token, err := h.auth.SignIn(r.Context(), auth.SignInParams{
		Email:    req.Email,
		Password: req.Password,
		ClientID: req.ClientID,
		IP:       clientIP(r),
	})
	if err != nil {
		// Unknown identity and credential mismatch are distinguished in the
		// service logs but share one external message.
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnauthorized, "login information does not match")
			return
		}
		h.logger.Error("sign-in failed", sl.Err(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}

	SetCredentialCookie(w, token)
	writeMessage(w, http.StatusOK, "successfully signed in")
}

func (h *usersHandler) profile(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	p, err := h.users.Profile(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, user.ErrProfileNotFound) {
			writeMessage(w, http.StatusNotFound, "user information does not exist")
			return
		}
		h.logger.Error("profile lookup failed", sl.Err(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeData(w, http.StatusOK, p)
}

func (h *usersHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.users.UpdateProfile(r.Context(), id.UserID, patch)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrUnknownField):
			writeMessage(w, http.StatusBadRequest, "unknown profile field")
		case errors.Is(err, user.ErrInvalidFieldValue):
			writeMessage(w, http.StatusBadRequest, "invalid profile field value")
		case errors.Is(err, user.ErrProfileNotFound):
			writeMessage(w, http.StatusNotFound, "user information does not exist")
		default:
			h.logger.Error("profile update failed", sl.Err(err))
			writeMessage(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeMessage(w, http.StatusOK, "user information updated")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
