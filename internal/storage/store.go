// Package storage persists accounts, schedule images and extracted events.
// Two implementations share one interface: an in-memory store and a SQLite
// store with embedded migrations.
package storage

import (
	"context"

	"github.com/lehigh-university-libraries/calsnap/internal/models"
)

type UserStore interface {
	CreateUser(ctx context.Context, username, password string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUserTokens(ctx context.Context, id int64, accessToken string, refreshToken *string) (*models.User, error)
}

type ScheduleStore interface {
	CreateScheduleImage(ctx context.Context, userID *int64, filename string) (*models.ScheduleImage, error)
	GetScheduleImage(ctx context.Context, id int64) (*models.ScheduleImage, error)
	// UpdateScheduleImageStatus sets the status and, when text is non-nil, the
	// extracted text.
	UpdateScheduleImageStatus(ctx context.Context, id int64, status models.ProcessingStatus, text *string) (*models.ScheduleImage, error)
	ListScheduleImagesByUser(ctx context.Context, userID int64) ([]models.ScheduleImage, error)
}

type EventStore interface {
	// CreateExtractedEvents inserts every draft for the schedule or none of them.
	CreateExtractedEvents(ctx context.Context, scheduleImageID int64, drafts []models.EventDraft) ([]models.ExtractedEvent, error)
	GetExtractedEvent(ctx context.Context, id int64) (*models.ExtractedEvent, error)
	ListExtractedEvents(ctx context.Context, scheduleImageID int64) ([]models.ExtractedEvent, error)
	UpdateExtractedEvent(ctx context.Context, id int64, update models.EventUpdate) (*models.ExtractedEvent, error)
	DeleteExtractedEvent(ctx context.Context, id int64) error
	SetGoogleEventID(ctx context.Context, id int64, googleEventID string) (*models.ExtractedEvent, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	UserStore
	ScheduleStore
	EventStore
	Close() error
}

// Open returns the store selected by driver ("sqlite" or "memory").
func Open(driver, dsn string) (Store, error) {
	if driver == "memory" {
		return NewMemory(), nil
	}
	store, err := OpenSQLite(dsn)
	if err != nil {
		return nil, err
	}
	return store, nil
}
