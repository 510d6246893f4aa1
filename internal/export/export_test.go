package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/go-cmp/cmp"

	"github.com/lehigh-university-libraries/calsnap/internal/models"
)

func strPtr(s string) *string { return &s }

func sampleEvents() []models.ExtractedEvent {
	created := time.Date(2025, 2, 20, 12, 0, 0, 0, time.UTC)
	return []models.ExtractedEvent{
		{
			ID: 1, ScheduleImageID: 9, Title: "Math 101", Date: "2025-02-24", StartTime: "09:00",
			EndTime: strPtr("10:30"), Location: strPtr("Room 4"), CreatedAt: created,
		},
		{
			ID: 2, ScheduleImageID: 9, Title: "Lab", Date: "2025-02-25", StartTime: "13:00",
			Description: strPtr("bring goggles"), GoogleEventID: strPtr("abc123"), IsConfirmed: true, CreatedAt: created,
		},
	}
}

func TestWriteICS(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteICS(&buf, sampleEvents(), time.UTC); err != nil {
		t.Fatalf("WriteICS: %v", err)
	}

	cal, err := ical.NewDecoder(strings.NewReader(buf.String())).Decode()
	if err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	first := events[0]
	if s, _ := first.Props.Text(ical.PropSummary); s != "Math 101" {
		t.Errorf("unexpected summary %q", s)
	}
	if l, _ := first.Props.Text(ical.PropLocation); l != "Room 4" {
		t.Errorf("unexpected location %q", l)
	}
	start, err := first.DateTimeStart(time.UTC)
	if err != nil || !start.Equal(time.Date(2025, 2, 24, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v (%v)", start, err)
	}
	end, err := first.DateTimeEnd(time.UTC)
	if err != nil || !end.Equal(time.Date(2025, 2, 24, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected end %v (%v)", end, err)
	}

	second := events[1]
	if uid, _ := second.Props.Text(ical.PropUID); uid != "abc123@google.com" {
		t.Errorf("published event should reuse the google id, got %q", uid)
	}
	end, _ = second.DateTimeEnd(time.UTC)
	if !end.Equal(time.Date(2025, 2, 25, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("missing end should default to one hour, got %v", end)
	}
}

func TestWriteICSWithoutEvents(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteICS(&buf, []models.ExtractedEvent{}, time.UTC); err != nil {
		t.Fatalf("WriteICS: %v", err)
	}

	cal, err := ical.NewDecoder(strings.NewReader(buf.String())).Decode()
	if err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if n := len(cal.Events()); n != 0 {
		t.Errorf("expected no events, got %d", n)
	}
	if v, _ := cal.Props.Text(ical.PropProductID); v != productID {
		t.Errorf("unexpected product id %q", v)
	}
}

func TestWriteICSRejectsBadTime(t *testing.T) {
	events := []models.ExtractedEvent{{ID: 1, Title: "x", Date: "someday", StartTime: "09:00"}}
	if err := WriteICS(&bytes.Buffer{}, events, nil); err == nil {
		t.Error("expected error for unparseable date")
	}
}

func TestParquetRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	events := sampleEvents()
	if err := WriteParquet(&buf, events); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}

	data := buf.Bytes()
	got, err := ReadParquet(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}

	want := []EventRecord{toRecord(events[0]), toRecord(events[1])}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if want[0].CreatedAt != "2025-02-20T12:00:00Z" {
		t.Errorf("unexpected created_at %q", want[0].CreatedAt)
	}
}
