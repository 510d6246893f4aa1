package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/calsnap/internal/common"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
	"github.com/lehigh-university-libraries/calsnap/internal/storage"
)

func strPtr(s string) *string { return &s }

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	readErr error
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Save(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memBlobs) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such blob")
	}
	return data, nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memBlobs) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type fakeExtractor struct {
	text  string
	err   error
	panic bool
	mime  string
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte, mimeType string) (string, error) {
	if f.panic {
		panic("decoder exploded")
	}
	f.mime = mimeType
	return f.text, f.err
}

type fakeParser struct {
	result *models.ParseResult
	err    error
	image  []byte
}

func (f *fakeParser) Parse(_ context.Context, text string, image []byte, _ string) (*models.ParseResult, error) {
	f.image = image
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.OriginalText = text
	return &r, nil
}

type fixture struct {
	store  *storage.MemoryStore
	blobs  *memBlobs
	id     int64
	key    string
	orch   *Orchestrator
	ocr    *fakeExtractor
	parser *fakeParser
}

func newFixture(t *testing.T, ocrText string, ocrErr error, result *models.ParseResult, parseErr error) *fixture {
	t.Helper()
	f := &fixture{
		store:  storage.NewMemory(),
		blobs:  newMemBlobs(),
		key:    "schedule.png",
		ocr:    &fakeExtractor{text: ocrText, err: ocrErr},
		parser: &fakeParser{result: result, err: parseErr},
	}
	img, err := f.store.CreateScheduleImage(context.Background(), nil, "week.png")
	if err != nil {
		t.Fatalf("CreateScheduleImage: %v", err)
	}
	f.id = img.ID
	f.blobs.Save(context.Background(), f.key, []byte("png-bytes"), "image/png")
	f.orch = NewOrchestrator(f.store, f.blobs, f.ocr, f.parser, nil)
	return f
}

func (f *fixture) schedule(t *testing.T) *models.ScheduleImage {
	t.Helper()
	img, err := f.store.GetScheduleImage(context.Background(), f.id)
	if err != nil {
		t.Fatalf("GetScheduleImage: %v", err)
	}
	return img
}

func TestProcessMath101(t *testing.T) {
	result := &models.ParseResult{
		Events: []models.EventDraft{
			{Title: " Math 101 ", Date: "2025-02-24", StartTime: "09:00", EndTime: strPtr("10:30"), Location: strPtr("Room 4"), Description: strPtr("  ")},
		},
		Confidence: 0.9,
	}
	f := newFixture(t, "Math 101 Mon 9:00-10:30 Room 4", nil, result, nil)

	if err := f.orch.Process(context.Background(), f.id, f.key); err != nil {
		t.Fatalf("Process: %v", err)
	}

	img := f.schedule(t)
	if img.ProcessingStatus != models.StatusCompleted {
		t.Errorf("expected completed, got %s", img.ProcessingStatus)
	}
	if img.OriginalText == nil || *img.OriginalText != "Math 101 Mon 9:00-10:30 Room 4" {
		t.Errorf("original text not stored: %v", img.OriginalText)
	}

	events, _ := f.store.ListExtractedEvents(context.Background(), f.id)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Title != "Math 101" || e.Date != "2025-02-24" || e.StartTime != "09:00" ||
		e.EndTime == nil || *e.EndTime != "10:30" || e.Location == nil || *e.Location != "Room 4" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Description != nil {
		t.Errorf("blank description should be null, got %q", *e.Description)
	}

	if f.blobs.has(f.key) {
		t.Error("blob should be removed after success")
	}
	if f.ocr.mime != "image/png" || string(f.parser.image) != "png-bytes" {
		t.Errorf("image not passed through: mime=%s image=%q", f.ocr.mime, f.parser.image)
	}
}

func TestProcessEventCountMatchesParser(t *testing.T) {
	result := &models.ParseResult{Events: []models.EventDraft{
		{Title: "A", Date: "2025-02-24", StartTime: "09:00"},
		{Title: "B", Date: "2025-02-25", StartTime: "10:00"},
		{Title: "C", Date: "2025-02-26", StartTime: "11:00"},
	}}
	f := newFixture(t, "three things", nil, result, nil)
	if err := f.orch.Process(context.Background(), f.id, f.key); err != nil {
		t.Fatalf("Process: %v", err)
	}
	events, _ := f.store.ListExtractedEvents(context.Background(), f.id)
	if len(events) != len(result.Events) {
		t.Fatalf("expected %d events, got %d", len(result.Events), len(events))
	}
	for _, e := range events {
		if e.Title == "" || e.Date == "" || e.StartTime == "" {
			t.Errorf("required field empty: %+v", e)
		}
	}
}

func TestProcessFailures(t *testing.T) {
	ok := &models.ParseResult{Events: []models.EventDraft{{Title: "A", Date: "2025-02-24", StartTime: "09:00"}}}

	tests := []struct {
		name     string
		ocrText  string
		ocrErr   error
		parseErr error
		readErr  error
		wantErr  error
		wantText bool
	}{
		{name: "no text", ocrErr: common.ErrEmptyText, wantErr: common.ErrEmptyText},
		{name: "ocr service down", ocrErr: common.ErrExternalService, wantErr: common.ErrExternalService},
		{name: "unreadable blob", ocrText: "x", readErr: errors.New("disk gone"), wantErr: common.ErrIO},
		{name: "malformed parser output", ocrText: "x", parseErr: common.ErrParseFormat, wantErr: common.ErrParseFormat, wantText: true},
		{name: "missing field", ocrText: "x", parseErr: common.ErrMissingField, wantErr: common.ErrMissingField, wantText: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.ocrText, tt.ocrErr, ok, tt.parseErr)
			f.blobs.readErr = tt.readErr

			err := f.orch.Process(context.Background(), f.id, f.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			img := f.schedule(t)
			if img.ProcessingStatus != models.StatusFailed {
				t.Errorf("expected failed, got %s", img.ProcessingStatus)
			}
			if (img.OriginalText != nil) != tt.wantText {
				t.Errorf("original text presence = %v, want %v", img.OriginalText != nil, tt.wantText)
			}
			events, _ := f.store.ListExtractedEvents(context.Background(), f.id)
			if len(events) != 0 {
				t.Errorf("no events should be stored on failure, got %d", len(events))
			}

			f.blobs.readErr = nil
			if f.blobs.has(f.key) {
				t.Error("blob should be removed after failure")
			}
		})
	}
}

func TestProcessRecoversPanic(t *testing.T) {
	f := newFixture(t, "", nil, nil, nil)
	f.ocr.panic = true

	err := f.orch.Process(context.Background(), f.id, f.key)
	if err == nil {
		t.Fatal("expected error from panicking stage")
	}
	if img := f.schedule(t); img.ProcessingStatus != models.StatusFailed {
		t.Errorf("expected failed, got %s", img.ProcessingStatus)
	}
	if f.blobs.has(f.key) {
		t.Error("blob should be removed after panic")
	}
}

type stubProcessor struct {
	err    error
	block  chan struct{}
	panics bool
	gotCtx context.Context
	mu     sync.Mutex
	calls  int
}

func (s *stubProcessor) Process(ctx context.Context, _ int64, _ string) error {
	s.mu.Lock()
	s.calls++
	s.gotCtx = ctx
	s.mu.Unlock()
	if s.panics {
		panic("boom")
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func TestRunnerSubmitCompletes(t *testing.T) {
	var observed []*Job
	var mu sync.Mutex
	proc := &stubProcessor{err: common.ErrEmptyText}
	r := NewRunner(proc, WithObserver(func(j *Job) {
		mu.Lock()
		observed = append(observed, j)
		mu.Unlock()
	}))

	job := r.Submit(7, "k.png")
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}

	if !errors.Is(job.Err(), common.ErrEmptyText) {
		t.Errorf("expected job error, got %v", job.Err())
	}
	if job.FinishedAt().Before(job.StartedAt()) {
		t.Errorf("finish before start")
	}

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 1 || observed[0] != job {
		t.Errorf("observer should see the job once, got %d", len(observed))
	}
}

func TestRunnerJobTimeout(t *testing.T) {
	proc := &stubProcessor{block: make(chan struct{})}
	r := NewRunner(proc, WithJobTimeout(20*time.Millisecond))

	job := r.Submit(1, "k.png")
	<-job.Done()
	if !errors.Is(job.Err(), context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", job.Err())
	}
}

func TestRunnerRecoversPanic(t *testing.T) {
	r := NewRunner(&stubProcessor{panics: true})
	job := r.Submit(1, "k.png")
	<-job.Done()
	if job.Err() == nil {
		t.Error("expected error from panicking processor")
	}
}

func TestRunnerShutdownWaitsAndRejects(t *testing.T) {
	proc := &stubProcessor{block: make(chan struct{})}
	r := NewRunner(proc)
	job := r.Submit(1, "k.png")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected shutdown to time out while job runs, got %v", err)
	}

	late := r.Submit(2, "late.png")
	<-late.Done()
	if !errors.Is(late.Err(), ErrRunnerClosed) {
		t.Errorf("expected ErrRunnerClosed, got %v", late.Err())
	}

	close(proc.block)
	if err := r.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if job.Err() != nil {
		t.Errorf("unexpected job error: %v", job.Err())
	}
}

func TestRunnerWithOrchestratorEndToEnd(t *testing.T) {
	result := &models.ParseResult{Events: []models.EventDraft{{Title: "Math 101", Date: "2025-02-24", StartTime: "09:00"}}}
	f := newFixture(t, "Math 101", nil, result, nil)
	r := NewRunner(f.orch)

	job := r.Submit(f.id, f.key)
	<-job.Done()
	if err := job.Err(); err != nil {
		t.Fatalf("job: %v", err)
	}
	if img := f.schedule(t); !img.ProcessingStatus.Terminal() {
		t.Errorf("expected terminal status, got %s", img.ProcessingStatus)
	}
}
