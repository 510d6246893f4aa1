// Package pipeline runs uploaded schedule images through OCR and parsing and
// records the outcome.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lehigh-university-libraries/calsnap/internal/blobstore"
	"github.com/lehigh-university-libraries/calsnap/internal/common"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
	"github.com/lehigh-university-libraries/calsnap/internal/ocr"
	"github.com/lehigh-university-libraries/calsnap/internal/storage"
)

// Parser turns extracted text, and optionally the source image, into drafts.
type Parser interface {
	Parse(ctx context.Context, text string, image []byte, mimeType string) (*models.ParseResult, error)
}

// Store is the part of the record store the orchestrator writes to.
type Store interface {
	storage.ScheduleStore
	storage.EventStore
}

type Orchestrator struct {
	store     Store
	blobs     blobstore.Store
	extractor ocr.Extractor
	parser    Parser
	logger    *slog.Logger
}

func NewOrchestrator(store Store, blobs blobstore.Store, extractor ocr.Extractor, parser Parser, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		blobs:     blobs,
		extractor: extractor,
		parser:    parser,
		logger:    logger,
	}
}

// Process moves the schedule image to completed or failed and always removes
// the blob stored under blobKey.
func (o *Orchestrator) Process(ctx context.Context, scheduleImageID int64, blobKey string) (err error) {
	log := o.logger.With("schedule_image_id", scheduleImageID, "blob", blobKey)
	stage := "status"

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during %s: %v", stage, p)
		}
		// cleanup must outlive a cancelled job context
		cleanupCtx := context.WithoutCancel(ctx)
		if err != nil {
			log.Error("Schedule processing failed", "stage", stage, "err", err)
			if _, serr := o.store.UpdateScheduleImageStatus(cleanupCtx, scheduleImageID, models.StatusFailed, nil); serr != nil {
				log.Error("Unable to mark schedule failed", "err", serr)
			}
		}
		if derr := o.blobs.Delete(cleanupCtx, blobKey); derr != nil {
			log.Warn("Unable to remove uploaded image", "err", derr)
		}
	}()

	if _, err := o.store.UpdateScheduleImageStatus(ctx, scheduleImageID, models.StatusProcessing, nil); err != nil {
		return err
	}

	stage = "read"
	image, err := o.blobs.Read(ctx, blobKey)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrIO, err)
	}
	mimeType := blobstore.ContentType(blobKey)

	stage = "ocr"
	text, err := o.extractor.Extract(ctx, image, mimeType)
	if err != nil {
		return err
	}
	log.Info("Text extracted", "length", len(text))

	stage = "save_text"
	if _, err := o.store.UpdateScheduleImageStatus(ctx, scheduleImageID, models.StatusProcessing, &text); err != nil {
		return err
	}

	stage = "parse"
	result, err := o.parser.Parse(ctx, text, image, mimeType)
	if err != nil {
		return err
	}

	stage = "save_events"
	drafts := make([]models.EventDraft, 0, len(result.Events))
	for _, d := range result.Events {
		drafts = append(drafts, trimDraft(d))
	}
	if _, err := o.store.CreateExtractedEvents(ctx, scheduleImageID, drafts); err != nil {
		return err
	}

	stage = "complete"
	if _, err := o.store.UpdateScheduleImageStatus(ctx, scheduleImageID, models.StatusCompleted, nil); err != nil {
		return err
	}

	log.Info("Schedule processed", "events", len(drafts), "confidence", result.Confidence)
	return nil
}

func trimDraft(d models.EventDraft) models.EventDraft {
	d.Title = strings.TrimSpace(d.Title)
	d.Date = strings.TrimSpace(d.Date)
	d.StartTime = strings.TrimSpace(d.StartTime)
	d.EndTime = trimOptional(d.EndTime)
	d.Location = trimOptional(d.Location)
	d.Description = trimOptional(d.Description)
	return d
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
