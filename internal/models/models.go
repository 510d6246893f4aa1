package models

import "time"

// ProcessingStatus is a schedule image's position in the pipeline.
type ProcessingStatus string

const (
	StatusUploading  ProcessingStatus = "uploading"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Terminal reports whether no further pipeline transition can happen.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// User is an account that may hold Google OAuth tokens.
type User struct {
	ID                 int64     `json:"id"`
	Username           string    `json:"username"`
	Password           string    `json:"-"`
	GoogleAccessToken  *string   `json:"-"`
	GoogleRefreshToken *string   `json:"-"`
	CreatedAt          time.Time `json:"createdAt"`
}

// CalendarConnected reports whether the account can publish events.
func (u *User) CalendarConnected() bool {
	return u != nil && u.GoogleAccessToken != nil && *u.GoogleAccessToken != ""
}

// ScheduleImage is one uploaded file and its processing record.
type ScheduleImage struct {
	ID               int64            `json:"id"`
	UserID           *int64           `json:"userId"`
	Filename         string           `json:"filename"`
	OriginalText     *string          `json:"originalText"`
	ProcessingStatus ProcessingStatus `json:"processingStatus"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// ExtractedEvent is one candidate calendar entry derived from a schedule image.
type ExtractedEvent struct {
	ID              int64     `json:"id"`
	ScheduleImageID int64     `json:"scheduleImageId"`
	Title           string    `json:"title"`
	Date            string    `json:"date"`
	StartTime       string    `json:"startTime"`
	EndTime         *string   `json:"endTime"`
	Location        *string   `json:"location"`
	Description     *string   `json:"description"`
	GoogleEventID   *string   `json:"googleEventId"`
	IsConfirmed     bool      `json:"isConfirmed"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Draft returns the publishable part of the event.
func (e ExtractedEvent) Draft() EventDraft {
	return EventDraft{
		Title:       e.Title,
		Date:        e.Date,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Location:    e.Location,
		Description: e.Description,
	}
}

// EventDraft is a structured event as produced by the parser and consumed by
// the calendar publisher.
type EventDraft struct {
	Title       string  `json:"title" yaml:"title"`
	Date        string  `json:"date" yaml:"date"`
	StartTime   string  `json:"startTime" yaml:"startTime"`
	EndTime     *string `json:"endTime,omitempty" yaml:"endTime,omitempty"`
	Location    *string `json:"location,omitempty" yaml:"location,omitempty"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ParseResult is what the schedule parser hands back to the orchestrator.
type ParseResult struct {
	Events       []EventDraft `json:"events" yaml:"events"`
	Confidence   float64      `json:"confidence" yaml:"confidence"`
	OriginalText string       `json:"originalText" yaml:"originalText"`
}
