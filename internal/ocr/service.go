// Package ocr turns schedule images into raw text.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lehigh-university-libraries/calsnap/internal/common"
	"github.com/lehigh-university-libraries/calsnap/internal/providers"
)

// Extractor returns all text visible in an image.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (string, error)
}

// LLM performs OCR with a vision-capable language model.
type LLM struct {
	provider providers.Provider
	name     string
	model    string
}

func NewLLM(provider providers.Provider, name, model string) *LLM {
	return &LLM{provider: provider, name: name, model: model}
}

func (l *LLM) Extract(ctx context.Context, image []byte, mimeType string) (string, error) {
	text, err := l.provider.Generate(ctx, providers.Config{
		Model:       l.model,
		Temperature: 0.0, // zero temperature for exact transcription
		Prompt:      buildOCRPrompt(),
		Image:       image,
		ImageMIME:   mimeType,
		MaxTokens:   2000,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s OCR: %w", common.ErrExternalService, l.name, err)
	}

	slog.Info("Extracted OCR text", "provider", l.name, "model", l.model, "length", len(text))
	return finish(text)
}

func buildOCRPrompt() string {
	return `You are performing OCR (Optical Character Recognition) on an image of a schedule, timetable, agenda or calendar.

Your task is to extract ALL visible text from the image exactly as it appears, preserving:
- Line breaks and table rows
- Dates, weekdays and times exactly as written
- Room numbers, locations and course codes
- Order of text elements

INSTRUCTIONS:
1. Read the image carefully from top to bottom, left to right
2. Transcribe every piece of visible text
3. Keep each row of a table on its own line
4. Do not add any interpretation, commentary, or explanations
5. If text is partially obscured or unclear, transcribe what you can see and use [?] for illegible portions
6. If the image contains no text at all, respond with nothing

OUTPUT FORMAT:
Provide ONLY the extracted text. Do not include phrases like "Here is the text:" or "The image contains:".

Example output:
Spring Schedule
Math 101  Mon 9:00-10:30  Room 4
Chemistry Lab  Tue 1:00 PM  Science Hall`
}

// finish normalises OCR output to NFC and rejects blank results.
func finish(text string) (string, error) {
	text = norm.NFC.String(text)
	if strings.TrimSpace(text) == "" {
		return "", common.ErrEmptyText
	}
	return text, nil
}
