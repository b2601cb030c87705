package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"resumehub/internal/domain/models"
	"resumehub/internal/lib/sl"
	"resumehub/internal/storage"
)

var (
	ErrProfileNotFound   = errors.New("profile not found")
	ErrUnknownField      = errors.New("unknown profile field")
	ErrInvalidFieldValue = errors.New("invalid profile field value")
)

// Mutable profile fields, in patch application order. The patch endpoint
// accepts exactly these keys and nothing else.
const (
	FieldName   = "name"
	FieldAge    = "age"
	FieldGender = "gender"
)

var mutableFields = []string{FieldName, FieldAge, FieldGender}

type Service struct {
	logger *slog.Logger
	store  ProfileStore
}

type ProfileStore interface {
	UserByID(ctx context.Context, userID int64) (*models.User, error)
	UserInfo(ctx context.Context, userID int64) (*models.UserInfo, error)
	UpdateUserInfo(ctx context.Context, info models.UserInfo, histories []models.UserHistory) error
}

func New(logger *slog.Logger, store ProfileStore) *Service {
	return &Service{
		logger: logger,
		store:  store,
	}
}

// Profile is the account plus its profile data, without credentials.
type Profile struct {
	UserID    int64
	Email     string
	Name      string
	Age       int
	Gender    string
	CreatedAt string
	UpdatedAt string
}

func (s *Service) Profile(ctx context.Context, userID int64) (*Profile, error) {
	const op = "user.Profile"
	log := s.logger.With(slog.String("op", op), slog.Int64("userID", userID))

	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrProfileNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	info, err := s.store.UserInfo(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserInfoNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrProfileNotFound)
		}
		log.Error("failed to get user info", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Profile{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      info.Name,
		Age:       info.Age,
		Gender:    info.Gender,
		CreatedAt: u.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt: u.UpdatedAt.Format("2006-01-02 15:04:05"),
	}, nil
}

// UpdateProfile applies a merge patch over the closed field set and emits
// one history entry per field whose value actually changed. The walk is an
// explicit loop over the enumeration, never over the caller's map, so an
// unexpected key can only be rejected, not silently applied.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, patch map[string]any) error {
	const op = "user.UpdateProfile"
	log := s.logger.With(slog.String("op", op), slog.Int64("userID", userID))

	for key := range patch {
		if !isMutableField(key) {
			return fmt.Errorf("%s: %q: %w", op, key, ErrUnknownField)
		}
	}

	info, err := s.store.UserInfo(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserInfoNotFound) {
			return fmt.Errorf("%s: %w", op, ErrProfileNotFound)
		}
		log.Error("failed to get user info", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	merged := *info
	var histories []models.UserHistory

	for _, field := range mutableFields {
		raw, ok := patch[field]
		if !ok {
			continue
		}

		var oldValue, newValue string
		switch field {
		case FieldName:
			v, ok := raw.(string)
			if !ok {
				return fmt.Errorf("%s: %q: %w", op, field, ErrInvalidFieldValue)
			}
			if v == info.Name {
				continue
			}
			oldValue, newValue = info.Name, v
			merged.Name = v
		case FieldAge:
			v, err := toInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %q: %w", op, field, ErrInvalidFieldValue)
			}
			if v == info.Age {
				continue
			}
			oldValue, newValue = strconv.Itoa(info.Age), strconv.Itoa(v)
			merged.Age = v
		case FieldGender:
			v, ok := raw.(string)
			if !ok {
				return fmt.Errorf("%s: %q: %w", op, field, ErrInvalidFieldValue)
			}
			if v == info.Gender {
				continue
			}
			oldValue, newValue = info.Gender, v
			merged.Gender = v
		}

		histories = append(histories, models.UserHistory{
			UserID:       userID,
			ChangedField: field,
			OldValue:     oldValue,
			NewValue:     newValue,
		})
	}

	if err := s.store.UpdateUserInfo(ctx, merged, histories); err != nil {
		if errors.Is(err, storage.ErrUserInfoNotFound) {
			return fmt.Errorf("%s: %w", op, ErrProfileNotFound)
		}
		log.Error("failed to update user info", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("profile updated", slog.Int("changedFields", len(histories)))

	return nil
}

func isMutableField(key string) bool {
	for _, f := range mutableFields {
		if key == f {
			return true
		}
	}
	return false
}

// toInt accepts the int that direct callers pass and the float64 that
// decoded JSON produces.
func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		if v != float64(int(v)) {
			return 0, errors.New("not an integer")
		}
		return int(v), nil
	default:
		return 0, errors.New("not a number")
	}
}
