package user

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumehub/internal/domain/models"
	"resumehub/internal/storage"
)

type fakeStore struct {
	user      *models.User
	info      *models.UserInfo
	histories []models.UserHistory
	updates   int
}

func (f *fakeStore) UserByID(_ context.Context, userID int64) (*models.User, error) {
	if f.user == nil || f.user.ID != userID {
		return nil, storage.ErrUserNotFound
	}
	return f.user, nil
}

func (f *fakeStore) UserInfo(_ context.Context, userID int64) (*models.UserInfo, error) {
	if f.info == nil || f.info.UserID != userID {
		return nil, storage.ErrUserInfoNotFound
	}
	cp := *f.info
	return &cp, nil
}

func (f *fakeStore) UpdateUserInfo(_ context.Context, info models.UserInfo, histories []models.UserHistory) error {
	if f.info == nil || f.info.UserID != info.UserID {
		return storage.ErrUserInfoNotFound
	}
	*f.info = info
	f.histories = append(f.histories, histories...)
	f.updates++
	return nil
}

func newTestService(st *fakeStore) *Service {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), st)
}

func seededStore() *fakeStore {
	return &fakeStore{
		user: &models.User{
			ID:        7,
			Email:     "a@x.com",
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		info: &models.UserInfo{UserID: 7, Name: "Kim", Age: 30, Gender: "F"},
	}
}

func TestProfile(t *testing.T) {
	st := seededStore()
	svc := newTestService(st)

	p, err := svc.Profile(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, "a@x.com", p.Email)
	assert.Equal(t, "Kim", p.Name)
	assert.Equal(t, 30, p.Age)
}

func TestProfileNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.Profile(context.Background(), 7)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestUpdateProfileEmitsHistoryPerChangedField(t *testing.T) {
	st := seededStore()
	svc := newTestService(st)

	// "gender" is present but unchanged: no history row for it.
	err := svc.UpdateProfile(context.Background(), 7, map[string]any{
		"name":   "Lee",
		"age":    float64(31), // JSON numbers decode as float64
		"gender": "F",
	})
	require.NoError(t, err)

	assert.Equal(t, "Lee", st.info.Name)
	assert.Equal(t, 31, st.info.Age)

	require.Len(t, st.histories, 2)
	byField := make(map[string]models.UserHistory)
	for _, h := range st.histories {
		byField[h.ChangedField] = h
	}
	assert.Equal(t, "Kim", byField["name"].OldValue)
	assert.Equal(t, "Lee", byField["name"].NewValue)
	assert.Equal(t, "30", byField["age"].OldValue)
	assert.Equal(t, "31", byField["age"].NewValue)
}

func TestUpdateProfileRejectsUnknownKey(t *testing.T) {
	st := seededStore()
	svc := newTestService(st)

	err := svc.UpdateProfile(context.Background(), 7, map[string]any{
		"name":  "Lee",
		"email": "evil@x.com",
	})
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Equal(t, 0, st.updates, "a rejected patch must not reach storage")
	assert.Equal(t, "Kim", st.info.Name)
}

func TestUpdateProfileRejectsBadValueType(t *testing.T) {
	st := seededStore()
	svc := newTestService(st)
	ctx := context.Background()

	err := svc.UpdateProfile(ctx, 7, map[string]any{"age": "thirty"})
	assert.ErrorIs(t, err, ErrInvalidFieldValue)

	err = svc.UpdateProfile(ctx, 7, map[string]any{"age": 30.5})
	assert.ErrorIs(t, err, ErrInvalidFieldValue)

	err = svc.UpdateProfile(ctx, 7, map[string]any{"name": 42})
	assert.ErrorIs(t, err, ErrInvalidFieldValue)

	assert.Equal(t, 0, st.updates)
}

func TestUpdateProfileNoChangesStillWrites(t *testing.T) {
	st := seededStore()
	svc := newTestService(st)

	err := svc.UpdateProfile(context.Background(), 7, map[string]any{"name": "Kim"})
	require.NoError(t, err)
	assert.Empty(t, st.histories)
	assert.Equal(t, 1, st.updates)
}

func TestUpdateProfileIntAge(t *testing.T) {
	st := seededStore()
	svc := newTestService(st)

	err := svc.UpdateProfile(context.Background(), 7, map[string]any{"age": 45})
	require.NoError(t, err)
	assert.Equal(t, 45, st.info.Age)
}
