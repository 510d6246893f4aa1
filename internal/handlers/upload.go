package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/calsnap/internal/blobstore"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
	"github.com/lehigh-university-libraries/calsnap/internal/pipeline"
)

// multipartOverhead is the room left for form boundaries and headers on top
// of the file size limit.
const multipartOverhead = 1 << 20

var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/webp": ".webp",
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	maxBytes := h.opts.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.writeError(w, tooLargeMessage(maxBytes), http.StatusRequestEntityTooLarge)
		case errors.Is(err, http.ErrMissingFile):
			h.writeError(w, "No image file provided", http.StatusBadRequest)
		default:
			h.writeError(w, "Failed to read upload: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > maxBytes {
		h.writeError(w, tooLargeMessage(maxBytes), http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		h.writeError(w, "No image file provided", http.StatusBadRequest)
		return
	}

	contentType, ext, ok := imageType(header.Header.Get("Content-Type"), data)
	if !ok {
		h.writeError(w, "Invalid file type. Only PNG, JPG, JPEG, and WebP are allowed.", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	key := blobstore.NewKey(ext)
	if err := h.blobs.Save(ctx, key, data, contentType); err != nil {
		slog.Error("Failed to store upload", "key", key, "err", err)
		h.writeError(w, "Failed to upload image", http.StatusInternalServerError)
		return
	}

	img, err := h.store.CreateScheduleImage(ctx, &accountID, key)
	if err != nil {
		if delErr := h.blobs.Delete(ctx, key); delErr != nil {
			slog.Error("Failed to remove orphaned upload", "key", key, "err", delErr)
		}
		slog.Error("Failed to record upload", "err", err)
		h.writeError(w, "Failed to upload image", http.StatusInternalServerError)
		return
	}

	if job := h.jobs.Submit(img.ID, key); errors.Is(job.Err(), pipeline.ErrRunnerClosed) {
		// nothing will ever process this image
		if _, err := h.store.UpdateScheduleImageStatus(ctx, img.ID, models.StatusFailed, nil); err != nil {
			slog.Error("Failed to mark unprocessed upload", "schedule_image_id", img.ID, "err", err)
		}
		if err := h.blobs.Delete(ctx, key); err != nil {
			slog.Error("Failed to remove unprocessed upload", "key", key, "err", err)
		}
		slog.Warn("Rejected upload during shutdown", "schedule_image_id", img.ID)
		h.writeError(w, "Server is shutting down, try again later", http.StatusServiceUnavailable)
		return
	}
	slog.Info("Accepted schedule image", "schedule_image_id", img.ID, "account_id", accountID, "original_name", header.Filename, "bytes", len(data))

	h.writeJSON(w, map[string]any{
		"scheduleImageId": img.ID,
		"message":         "Image uploaded successfully, processing started",
	})
}

// imageType accepts the declared part type when it is specific and otherwise
// sniffs the content.
func imageType(declared string, data []byte) (string, string, bool) {
	declared = strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	if declared == "" || declared == "application/octet-stream" {
		declared = http.DetectContentType(data)
	}
	ext, ok := allowedImageTypes[declared]
	if declared == "image/jpg" {
		declared = "image/jpeg"
	}
	return declared, ext, ok
}

func tooLargeMessage(maxBytes int64) string {
	if maxBytes < 1024*1024 {
		return fmt.Sprintf("File too large (max %d bytes)", maxBytes)
	}
	return fmt.Sprintf("File too large (max %dMB)", maxBytes/(1024*1024))
}
