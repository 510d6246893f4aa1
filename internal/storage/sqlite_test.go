package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lehigh-university-libraries/calsnap/internal/common"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
)

func newStoreWithMock(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return newSQLiteStore(db), mock, db
}

var dbErrPattern = regexp.MustCompile(`db error: .*db down`)

func TestGetUser_NotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*username.*FROM\s+users\s+WHERE\s+id\s*=\s*\?$`).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetUser(context.Background(), 7)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestGetUser_DBError(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*username.*FROM\s+users\s+WHERE\s+id\s*=\s*\?$`).
		WithArgs(int64(7)).
		WillReturnError(errors.New("db down"))

	_, err := store.GetUser(context.Background(), 7)
	if err == nil || !dbErrPattern.MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	if errors.Is(err, common.ErrNotFound) {
		t.Fatalf("db failure must not look like a missing row")
	}
}

func TestCreateExtractedEvents_RollsBackOnInsertError(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\s+id\s+FROM\s+schedule_images\s+WHERE\s+id\s*=\s*\?$`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+extracted_events`).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+extracted_events`).
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	drafts := []models.EventDraft{
		{Title: "Math 101", Date: "2025-02-24", StartTime: "09:00"},
		{Title: "Lab", Date: "2025-02-25", StartTime: "13:00"},
	}
	_, err := store.CreateExtractedEvents(context.Background(), 3, drafts)
	if err == nil || !dbErrPattern.MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteExtractedEvent_NoRows(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+extracted_events\s+WHERE\s+id\s*=\s*\?$`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteExtractedEvent(context.Background(), 5)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestUpdateScheduleImageStatus_DBError(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+schedule_images\s+SET\s+processing_status\s*=\s*\?\s+WHERE\s+id\s*=\s*\?$`).
		WithArgs("failed", int64(2)).
		WillReturnError(errors.New("db down"))

	_, err := store.UpdateScheduleImageStatus(context.Background(), 2, models.StatusFailed, nil)
	if err == nil || !dbErrPattern.MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetScheduleImage_ScansNullableColumns(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	created := time.Date(2025, 2, 24, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "filename", "original_text", "processing_status", "created_at"}).
		AddRow(int64(4), nil, "week.png", nil, "processing", created.Format(timeLayout))
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*user_id.*FROM\s+schedule_images\s+WHERE\s+id\s*=\s*\?$`).
		WithArgs(int64(4)).
		WillReturnRows(rows)

	img, err := store.GetScheduleImage(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetScheduleImage: %v", err)
	}
	if img.UserID != nil || img.OriginalText != nil {
		t.Errorf("expected null user and text, got %+v", img)
	}
	if img.ProcessingStatus != models.StatusProcessing || !img.CreatedAt.Equal(created) {
		t.Errorf("unexpected schedule: %+v", img)
	}
}

func TestWithPragmas(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"calsnap.db", "calsnap.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"file:calsnap.db?mode=rwc", "file:calsnap.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"calsnap.db?_pragma=journal_mode(WAL)", "calsnap.db?_pragma=journal_mode(WAL)"},
	}
	for _, tt := range tests {
		if got := withPragmas(tt.dsn); got != tt.want {
			t.Errorf("withPragmas(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}
