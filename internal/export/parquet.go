package export

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/lehigh-university-libraries/calsnap/internal/models"
)

// EventRecord is the flat Parquet row for one extracted event.
type EventRecord struct {
	ID              int64   `parquet:"id"`
	ScheduleImageID int64   `parquet:"schedule_image_id"`
	Title           string  `parquet:"title"`
	Date            string  `parquet:"date"`
	StartTime       string  `parquet:"start_time"`
	EndTime         *string `parquet:"end_time,optional"`
	Location        *string `parquet:"location,optional"`
	Description     *string `parquet:"description,optional"`
	GoogleEventID   *string `parquet:"google_event_id,optional"`
	IsConfirmed     bool    `parquet:"is_confirmed"`
	CreatedAt       string  `parquet:"created_at"` // RFC 3339
}

func toRecord(e models.ExtractedEvent) EventRecord {
	return EventRecord{
		ID:              e.ID,
		ScheduleImageID: e.ScheduleImageID,
		Title:           e.Title,
		Date:            e.Date,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		Location:        e.Location,
		Description:     e.Description,
		GoogleEventID:   e.GoogleEventID,
		IsConfirmed:     e.IsConfirmed,
		CreatedAt:       e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// WriteParquet writes one row per event.
func WriteParquet(w io.Writer, events []models.ExtractedEvent) error {
	records := make([]EventRecord, 0, len(events))
	for _, e := range events {
		records = append(records, toRecord(e))
	}

	writer := parquet.NewGenericWriter[EventRecord](w)
	if _, err := writer.Write(records); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// ReadParquet loads every row from a file written by WriteParquet.
func ReadParquet(r io.ReaderAt, size int64) ([]EventRecord, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[EventRecord](pf)
	defer reader.Close()

	records := make([]EventRecord, 0, pf.NumRows())
	rows := make([]EventRecord, 128)
	for {
		n, err := reader.Read(rows)
		records = append(records, rows[:n]...)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	slog.Debug("Read parquet export", "rows", len(records))
	return records, nil
}
