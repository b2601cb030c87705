package resume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"resumehub/internal/domain/models"
	"resumehub/internal/lib/policy"
	"resumehub/internal/lib/sl"
	"resumehub/internal/storage"
)

var (
	ErrResumeNotFound = errors.New("resume not found")
	ErrAccessDenied   = errors.New("insufficient privilege")
	ErrInvalidStatus  = errors.New("invalid resume status")
)

type Service struct {
	logger *slog.Logger
	store  ResumeStore
	policy *policy.Policy
}

type ResumeStore interface {
	SaveResume(ctx context.Context, userID int64, title, content string) (int64, error)
	Resumes(ctx context.Context, orderDesc bool) ([]models.Resume, error)
	Resume(ctx context.Context, resumeID int64) (*models.Resume, error)
	UpdateResume(ctx context.Context, resumeID int64, title, content, status string) error
	DeleteResume(ctx context.Context, resumeID int64) error
}

func New(logger *slog.Logger, store ResumeStore, p *policy.Policy) *Service {
	return &Service{
		logger: logger,
		store:  store,
		policy: p,
	}
}

// Create stores a new resume for the identity with the default APPLY status.
func (s *Service) Create(ctx context.Context, id models.Identity, title, content string) (int64, error) {
	const op = "resume.Create"
	log := s.logger.With(slog.String("op", op), slog.Int64("userID", id.UserID))

	resumeID, err := s.store.SaveResume(ctx, id.UserID, title, content)
	if err != nil {
		log.Error("failed to save resume", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("resume created", slog.Int64("resumeID", resumeID))

	return resumeID, nil
}

// List returns all resumes ordered by creation time. orderValue is "asc" or
// "desc" case-insensitively; anything else falls back to newest-first.
func (s *Service) List(ctx context.Context, orderValue string) ([]models.Resume, error) {
	const op = "resume.List"

	orderDesc := !strings.EqualFold(orderValue, "asc")

	resumes, err := s.store.Resumes(ctx, orderDesc)
	if err != nil {
		s.logger.With(slog.String("op", op)).Error("failed to list resumes", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resumes, nil
}

// Get returns a single resume; only the owner or the admin may read it.
func (s *Service) Get(ctx context.Context, id models.Identity, resumeID int64) (*models.Resume, error) {
	const op = "resume.Get"

	r, err := s.load(ctx, op, resumeID)
	if err != nil {
		return nil, err
	}

	if !s.policy.Allows(id, r.UserID, true) {
		return nil, fmt.Errorf("%s: %w", op, ErrAccessDenied)
	}
	return r, nil
}

// UpdateParams is a merge patch: nil fields keep their stored value.
type UpdateParams struct {
	Title   *string
	Content *string
	Status  *string
}

// Update applies a merge patch to the identity's own resume. A status value
// outside the enumerated set rejects the whole patch before any write.
func (s *Service) Update(ctx context.Context, id models.Identity, resumeID int64, in UpdateParams) error {
	const op = "resume.Update"
	log := s.logger.With(slog.String("op", op), slog.Int64("resumeID", resumeID))

	r, err := s.load(ctx, op, resumeID)
	if err != nil {
		return err
	}

	if !s.policy.Allows(id, r.UserID, true) {
		log.Warn("update denied", slog.Int64("userID", id.UserID))
		return fmt.Errorf("%s: %w", op, ErrAccessDenied)
	}

	if in.Status != nil && !models.ValidResumeStatus(*in.Status) {
		return fmt.Errorf("%s: %w", op, ErrInvalidStatus)
	}

	title, content, status := r.Title, r.Content, r.Status
	if in.Title != nil {
		title = *in.Title
	}
	if in.Content != nil {
		content = *in.Content
	}
	if in.Status != nil {
		status = *in.Status
	}

	if err := s.store.UpdateResume(ctx, resumeID, title, content, status); err != nil {
		if errors.Is(err, storage.ErrResumeNotFound) {
			return fmt.Errorf("%s: %w", op, ErrResumeNotFound)
		}
		log.Error("failed to update resume", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("resume updated", slog.Int64("userID", id.UserID))

	return nil
}

// Delete removes the identity's own resume; the admin may delete any.
func (s *Service) Delete(ctx context.Context, id models.Identity, resumeID int64) error {
	const op = "resume.Delete"
	log := s.logger.With(slog.String("op", op), slog.Int64("resumeID", resumeID))

	r, err := s.load(ctx, op, resumeID)
	if err != nil {
		return err
	}

	if !s.policy.Allows(id, r.UserID, true) {
		log.Warn("delete denied", slog.Int64("userID", id.UserID))
		return fmt.Errorf("%s: %w", op, ErrAccessDenied)
	}

	if err := s.store.DeleteResume(ctx, resumeID); err != nil {
		if errors.Is(err, storage.ErrResumeNotFound) {
			return fmt.Errorf("%s: %w", op, ErrResumeNotFound)
		}
		log.Error("failed to delete resume", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("resume deleted", slog.Int64("userID", id.UserID))

	return nil
}

func (s *Service) load(ctx context.Context, op string, resumeID int64) (*models.Resume, error) {
	r, err := s.store.Resume(ctx, resumeID)
	if err != nil {
		if errors.Is(err, storage.ErrResumeNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrResumeNotFound)
		}
		s.logger.With(slog.String("op", op)).Error("failed to get resume", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}
