package cmd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/calsnap/internal/config"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
	"github.com/lehigh-university-libraries/calsnap/internal/pipeline"
)

type processFunc func(ctx context.Context, id int64, key string) error

func (f processFunc) Process(ctx context.Context, id int64, key string) error { return f(ctx, id, key) }

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "process", "upload", "export", "migrate"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("missing subcommand %s: %v", name, err)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "WARN", "error"} {
		if err := setupLogger(level); err != nil {
			t.Errorf("setupLogger(%q): %v", level, err)
		}
	}
	if err := setupLogger("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogFailedJob(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantLog bool
	}{
		{"success", nil, false},
		{"failure", errors.New("vision unavailable"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
			runner := pipeline.NewRunner(processFunc(func(context.Context, int64, string) error {
				return tt.err
			}), pipeline.WithObserver(logFailedJob(logger)))

			runner.Submit(7, "week.png")
			if err := runner.Shutdown(context.Background()); err != nil {
				t.Fatalf("Shutdown: %v", err)
			}

			out := buf.String()
			if got := strings.Contains(out, "Schedule processing job failed"); got != tt.wantLog {
				t.Fatalf("logged=%v, want %v: %q", got, tt.wantLog, out)
			}
			if tt.wantLog && (!strings.Contains(out, "schedule_image_id=7") || !strings.Contains(out, "vision unavailable")) {
				t.Errorf("failure log missing job details: %q", out)
			}
		})
	}
}

func TestWriteOutput(t *testing.T) {
	room := "Room 4"
	out := processOutput{
		Status: models.StatusCompleted,
		Events: []models.EventDraft{{Title: "Math 101", Date: "2025-02-24", StartTime: "09:00", Location: &room}},
	}

	var buf bytes.Buffer
	if err := writeOutput(&buf, "yaml", out); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	for _, want := range []string{"status: completed", "title: Math 101", "09:00", "location: Room 4"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("yaml output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := writeOutput(&buf, "json", out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(buf.String(), `"startTime": "09:00"`) {
		t.Errorf("unexpected json output:\n%s", buf.String())
	}
}

func TestNewProvider(t *testing.T) {
	var cfg config.Config
	cfg.LoadDefaults()

	if _, err := newProvider(&cfg, "openai"); err == nil {
		t.Error("openai without a key should fail")
	}
	if _, err := newProvider(&cfg, "ollama"); err != nil {
		t.Errorf("ollama: %v", err)
	}
	cfg.LLM.GeminiKey = "k"
	if _, err := newProvider(&cfg, "gemini"); err != nil {
		t.Errorf("gemini: %v", err)
	}
	if _, err := newProvider(&cfg, "vision"); err == nil {
		t.Error("vision is not an LLM provider")
	}
}
