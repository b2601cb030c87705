package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"resumehub/internal/domain/models"
	"resumehub/internal/lib/sl"
	"resumehub/internal/services/resume"
)

type ResumeService interface {
	Create(ctx context.Context, id models.Identity, title, content string) (int64, error)
	List(ctx context.Context, orderValue string) ([]models.Resume, error)
	Get(ctx context.Context, id models.Identity, resumeID int64) (*models.Resume, error)
	Update(ctx context.Context, id models.Identity, resumeID int64, in resume.UpdateParams) error
	Delete(ctx context.Context, id models.Identity, resumeID int64) error
}

type resumesHandler struct {
	logger  *slog.Logger
	resumes ResumeService
}

type createResumeRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *resumesHandler) create(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req createResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeMessage(w, http.StatusBadRequest, "title is required")
		return
	}

	if _, err := h.resumes.Create(r.Context(), id, req.Title, req.Content); err != nil {
		h.logger.Error("resume create failed", sl.Err(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeMessage(w, http.StatusCreated, "resume created")
}

func (h *resumesHandler) list(w http.ResponseWriter, r *http.Request) {
	resumes, err := h.resumes.List(r.Context(), r.URL.Query().Get("orderValue"))
	if err != nil {
		h.logger.Error("resume list failed", sl.Err(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeData(w, http.StatusOK, resumes)
}

func (h *resumesHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	resumeID, ok := resumeIDFromPath(w, r)
	if !ok {
		return
	}

	res, err := h.resumes.Get(r.Context(), id, resumeID)
	if err != nil {
		h.respondError(w, err, "resume lookup failed")
		return
	}

	writeData(w, http.StatusOK, res)
}

type updateResumeRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Status  *string `json:"status"`
}

func (h *resumesHandler) update(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	resumeID, ok := resumeIDFromPath(w, r)
	if !ok {
		return
	}

	var req updateResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.resumes.Update(r.Context(), id, resumeID, resume.UpdateParams{
		Title:   req.Title,
		Content: req.Content,
		Status:  req.Status,
	})
	if err != nil {
		h.respondError(w, err, "resume update failed")
		return
	}

	writeMessage(w, http.StatusOK, "resume updated")
}

func (h *resumesHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	resumeID, ok := resumeIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.resumes.Delete(r.Context(), id, resumeID); err != nil {
		h.respondError(w, err, "resume delete failed")
		return
	}

	writeMessage(w, http.StatusOK, "resume deleted")
}

func (h *resumesHandler) respondError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, resume.ErrResumeNotFound):
		writeMessage(w, http.StatusNotFound, "resume lookup failed")
	case errors.Is(err, resume.ErrAccessDenied):
		writeMessage(w, http.StatusUnauthorized, "only your own resume can be accessed")
	case errors.Is(err, resume.ErrInvalidStatus):
		writeMessage(w, http.StatusBadRequest, "resume status is not valid")
	default:
		h.logger.Error(logMsg, sl.Err(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func resumeIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	resumeID, err := strconv.ParseInt(r.PathValue("resumeID"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid resume id")
		return 0, false
	}
	return resumeID, true
}
