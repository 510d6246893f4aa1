// Package client talks to a running calsnap server: it uploads schedule
// images and polls until processing reaches a terminal status.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/calsnap/internal/blobstore"
	"github.com/lehigh-university-libraries/calsnap/internal/calendar"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
)

// DefaultPollInterval matches the web client's refresh rate.
const DefaultPollInterval = 2 * time.Second

// Client keeps the server's session cookie between calls so uploads and
// status checks resolve to the same account.
type Client struct {
	BaseURL      string
	PollInterval time.Duration
	httpClient   *http.Client
}

// Schedule is a schedule image together with its extracted events.
type Schedule struct {
	Schedule models.ScheduleImage   `json:"schedule"`
	Events   []models.ExtractedEvent `json:"events"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		PollInterval: DefaultPollInterval,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Jar:     jar,
		},
	}
}

// Upload sends an image and returns the new schedule image id.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (int64, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filepath.Base(filename)))
	hdr.Set("Content-Type", blobstore.ContentType(filename))
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return 0, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return 0, fmt.Errorf("failed to write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("failed to close form: %w", err)
	}

	var resp struct {
		ScheduleImageID int64  `json:"scheduleImageId"`
		Message         string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/upload-schedule", mw.FormDataContentType(), &body, &resp); err != nil {
		return 0, err
	}
	return resp.ScheduleImageID, nil
}

// GetSchedule fetches one schedule and its events.
func (c *Client) GetSchedule(ctx context.Context, id int64) (*Schedule, error) {
	var s Schedule
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/schedule/%d", id), "", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// WaitForSchedule polls until the schedule is completed or failed, or ctx ends.
func (c *Client) WaitForSchedule(ctx context.Context, id int64) (*Schedule, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s, err := c.GetSchedule(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.Schedule.ProcessingStatus.Terminal() {
			return s, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CreateCalendarEvents publishes events to the account's Google Calendar.
func (c *Client) CreateCalendarEvents(ctx context.Context, eventIDs []int64) ([]calendar.Created, error) {
	payload, err := json.Marshal(map[string][]int64{"eventIds": eventIDs})
	if err != nil {
		return nil, err
	}
	var resp struct {
		CreatedEvents []calendar.Created `json:"createdEvents"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/create-calendar-events", "application/json", bytes.NewReader(payload), &resp); err != nil {
		return nil, err
	}
	return resp.CreatedEvents, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
