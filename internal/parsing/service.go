// Package parsing turns OCR text into structured event drafts with an LLM.
package parsing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/calsnap/internal/common"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
	"github.com/lehigh-university-libraries/calsnap/internal/providers"
)

const defaultConfidence = 0.5

type Options struct {
	Model       string
	Temperature float64
	// SendImage attaches the original image to the request for context.
	SendImage bool
	// Location is the timezone used to resolve "today".
	Location *time.Location
}

// Service extracts schedule events from text.
type Service struct {
	provider providers.Provider
	opts     Options
	now      func() time.Time
}

func NewService(provider providers.Provider, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{provider: provider, opts: opts, now: time.Now}
}

// Parse asks the model for events found in text. image may be nil.
func (s *Service) Parse(ctx context.Context, text string, image []byte, mimeType string) (*models.ParseResult, error) {
	config := providers.Config{
		Model:        s.opts.Model,
		Temperature:  s.opts.Temperature,
		SystemPrompt: buildSystemPrompt(s.now().In(s.opts.Location)),
		Prompt:       "Please parse this schedule text and extract all events:\n\n" + text,
		JSON:         true,
		MaxTokens:    2000,
	}
	if s.opts.SendImage && len(image) > 0 {
		config.Prompt += "\n\nThe original image is attached for additional context."
		config.Image = image
		config.ImageMIME = mimeType
	}

	raw, err := s.provider.Generate(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule parsing: %w", common.ErrExternalService, err)
	}

	result, err := decodeResponse(raw, text)
	if err != nil {
		slog.Error("Unable to use parser response", "err", err, "length", len(raw))
		return nil, err
	}
	return result, nil
}

func buildSystemPrompt(today time.Time) string {
	return `You are an expert at parsing schedule information from text extracted via OCR. Your task is to identify individual events/appointments and extract structured information about each one.

Today's date is ` + today.Format(models.DateLayout) + ` (` + today.Weekday().String() + `). Use it as the reference for relative dates.

Extract the following information for each event:
- title: The name/subject of the event
- date: Date in YYYY-MM-DD format
- startTime: Start time in HH:MM format (24-hour)
- endTime: End time in HH:MM format (24-hour) if available
- location: Location/room if mentioned
- description: Any additional details

Handle various date formats like:
- MM/DD/YYYY, DD/MM/YYYY
- "Monday", "Tuesday", etc. (assume current week)
- "Jan 15", "January 15th", etc.
- Relative dates like "Tomorrow", "Next Monday"

Handle various time formats like:
- 12-hour (9:00 AM, 2:30 PM)
- 24-hour (09:00, 14:30)
- Time ranges (9:00-10:30, 2-4 PM)

If information is missing or unclear, make reasonable assumptions based on context. If no clear date is found, use today's date. If no end time is specified but duration seems implied, estimate a reasonable duration.

Respond ONLY with valid JSON in this exact format:
{
  "events": [
    {
      "title": "Event Title",
      "date": "2024-01-15",
      "startTime": "09:00",
      "endTime": "10:30",
      "location": "Room 101",
      "description": "Additional details"
    }
  ],
  "confidence": 0.85
}`
}

// decodeResponse validates the model output and converts it into drafts.
func decodeResponse(raw, originalText string) (*models.ParseResult, error) {
	// Trim any markdown code blocks
	response := strings.TrimSpace(raw)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var envelope struct {
		Events     json.RawMessage `json:"events"`
		Confidence any             `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(response), &envelope); err != nil {
		return nil, fmt.Errorf("%w: response is not a JSON object: %w", common.ErrParseFormat, err)
	}

	var items []map[string]any
	if len(envelope.Events) == 0 || json.Unmarshal(envelope.Events, &items) != nil || items == nil {
		return nil, fmt.Errorf("%w: events is not a list", common.ErrParseFormat)
	}

	drafts := make([]models.EventDraft, 0, len(items))
	for i, item := range items {
		draft, err := toDraft(item)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		drafts = append(drafts, draft)
	}

	return &models.ParseResult{
		Events:       drafts,
		Confidence:   confidence(envelope.Confidence),
		OriginalText: originalText,
	}, nil
}

func toDraft(item map[string]any) (models.EventDraft, error) {
	fields := map[string]string{}
	for _, key := range []string{"title", "date", "startTime", "endTime", "location", "description"} {
		v, err := scalar(item[key])
		if err != nil {
			return models.EventDraft{}, fmt.Errorf("%w: %s: %w", common.ErrParseFormat, key, err)
		}
		fields[key] = v
	}

	for _, key := range []string{"title", "date", "startTime"} {
		if fields[key] == "" {
			return models.EventDraft{}, fmt.Errorf("%w: %s", common.ErrMissingField, key)
		}
	}

	if _, err := time.Parse(models.DateLayout, fields["date"]); err != nil {
		return models.EventDraft{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", common.ErrParseFormat, fields["date"])
	}
	start, err := models.NormalizeClock(fields["startTime"])
	if err != nil {
		return models.EventDraft{}, fmt.Errorf("%w: startTime %q is not HH:MM", common.ErrParseFormat, fields["startTime"])
	}

	draft := models.EventDraft{
		Title:       fields["title"],
		Date:        fields["date"],
		StartTime:   start,
		Location:    optional(fields["location"]),
		Description: optional(fields["description"]),
	}
	if fields["endTime"] != "" {
		end, err := models.NormalizeClock(fields["endTime"])
		if err != nil {
			return models.EventDraft{}, fmt.Errorf("%w: endTime %q is not HH:MM", common.ErrParseFormat, fields["endTime"])
		}
		draft.EndTime = &end
	}
	return draft, nil
}

// scalar renders a decoded JSON scalar as a trimmed string.
func scalar(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unexpected %T value", v)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// confidence clamps a numeric confidence into [0,1]; anything else is 0.5.
func confidence(v any) float64 {
	var c float64
	switch t := v.(type) {
	case float64:
		c = t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) {
			return defaultConfidence
		}
		c = f
	default:
		return defaultConfidence
	}
	return min(1, max(0, c))
}
