package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lehigh-university-libraries/calsnap/internal/blobstore"
	"github.com/lehigh-university-libraries/calsnap/internal/calendar"
	"github.com/lehigh-university-libraries/calsnap/internal/common"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
	"github.com/lehigh-university-libraries/calsnap/internal/pipeline"
	"github.com/lehigh-university-libraries/calsnap/internal/session"
	"github.com/lehigh-university-libraries/calsnap/internal/storage"
)

// Submitter starts background processing of an uploaded image.
type Submitter interface {
	Submit(scheduleImageID int64, blobKey string) *pipeline.Job
}

// Calendar covers the Google OAuth flow and event publishing.
type Calendar interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*calendar.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*calendar.Tokens, error)
	Publish(ctx context.Context, tokens calendar.Tokens, drafts []models.EventDraft) ([]calendar.Created, error)
}

type Options struct {
	MaxUploadBytes int64
	// StaticDir is served at / when set.
	StaticDir     string
	Location      *time.Location
	SecureCookies bool
}

type Handler struct {
	store    storage.Store
	blobs    blobstore.Store
	jobs     Submitter
	calendar Calendar
	opts     Options
}

func New(store storage.Store, blobs blobstore.Store, jobs Submitter, cal Calendar, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 * 1024 * 1024
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Handler{
		store:    store,
		blobs:    blobs,
		jobs:     jobs,
		calendar: cal,
		opts:     opts,
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Debug(message, "status", code)
	}
	writeMessage(w, message, code)
}

func writeMessage(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"message": message}); err != nil {
		slog.Error("Unable to encode JSON error", "err", err)
	}
}

// writeErr maps a store or service error onto a status code. failure is
// reported for errors that are not the caller's fault.
func (h *Handler) writeErr(w http.ResponseWriter, err error, notFound, failure string) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		h.writeError(w, notFound, http.StatusNotFound)
	case errors.Is(err, common.ErrValidation):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, common.ErrAuthRequired):
		h.writeError(w, "Google Calendar not connected", http.StatusUnauthorized)
	default:
		slog.Error(failure, "err", err)
		writeMessage(w, failure, http.StatusInternalServerError)
	}
}

// Request helpers
func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := session.AccountID(r.Context())
	if !ok {
		h.writeError(w, "Session required", http.StatusUnauthorized)
	}
	return id, ok
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, "Invalid "+what+" ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// ownedSchedule loads a schedule visible to the account. Schedules of other
// accounts are reported as missing.
func (h *Handler) ownedSchedule(ctx context.Context, accountID, id int64) (*models.ScheduleImage, error) {
	img, err := h.store.GetScheduleImage(ctx, id)
	if err != nil {
		return nil, err
	}
	if img.UserID != nil && *img.UserID != accountID {
		return nil, common.ErrNotFound
	}
	return img, nil
}

func (h *Handler) ownedEvent(ctx context.Context, accountID, id int64) (*models.ExtractedEvent, error) {
	event, err := h.store.GetExtractedEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := h.ownedSchedule(ctx, accountID, event.ScheduleImageID); err != nil {
		return nil, err
	}
	return event, nil
}
