package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/calsnap/internal/common"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// NullableString distinguishes an absent JSON key from an explicit null.
// Set is true whenever the key was present; Value is nil for null.
type NullableString struct {
	Set   bool
	Value *string
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// EventUpdate is a partial update of an extracted event's editable fields.
type EventUpdate struct {
	Title       *string        `json:"title"`
	Date        *string        `json:"date"`
	StartTime   *string        `json:"startTime"`
	EndTime     NullableString `json:"endTime"`
	Location    NullableString `json:"location"`
	Description NullableString `json:"description"`
	IsConfirmed *bool          `json:"isConfirmed"`
}

// Validate trims string values and checks date and time formats.
func (u *EventUpdate) Validate() error {
	if u.Title != nil {
		t := strings.TrimSpace(*u.Title)
		if t == "" {
			return fmt.Errorf("%w: title must not be empty", common.ErrValidation)
		}
		u.Title = &t
	}
	if u.Date != nil {
		d := strings.TrimSpace(*u.Date)
		if _, err := time.Parse(DateLayout, d); err != nil {
			return fmt.Errorf("%w: date must be YYYY-MM-DD", common.ErrValidation)
		}
		u.Date = &d
	}
	if u.StartTime != nil {
		st, err := NormalizeClock(*u.StartTime)
		if err != nil {
			return fmt.Errorf("%w: startTime must be HH:MM", common.ErrValidation)
		}
		u.StartTime = &st
	}
	if u.EndTime.Set && u.EndTime.Value != nil {
		et, err := NormalizeClock(*u.EndTime.Value)
		if err != nil {
			return fmt.Errorf("%w: endTime must be HH:MM", common.ErrValidation)
		}
		u.EndTime.Value = &et
	}
	trimNullable(&u.Location)
	trimNullable(&u.Description)
	return nil
}

// Apply copies every set field onto e.
func (u EventUpdate) Apply(e *ExtractedEvent) {
	if u.Title != nil {
		e.Title = *u.Title
	}
	if u.Date != nil {
		e.Date = *u.Date
	}
	if u.StartTime != nil {
		e.StartTime = *u.StartTime
	}
	if u.EndTime.Set {
		e.EndTime = u.EndTime.Value
	}
	if u.Location.Set {
		e.Location = u.Location.Value
	}
	if u.Description.Set {
		e.Description = u.Description.Value
	}
	if u.IsConfirmed != nil {
		e.IsConfirmed = *u.IsConfirmed
	}
}

// NormalizeClock parses H:MM or HH:MM and returns the two-digit form.
func NormalizeClock(s string) (string, error) {
	t, err := time.Parse(TimeLayout, strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return t.Format(TimeLayout), nil
}

func trimNullable(n *NullableString) {
	if !n.Set || n.Value == nil {
		return
	}
	v := strings.TrimSpace(*n.Value)
	if v == "" {
		n.Value = nil
		return
	}
	n.Value = &v
}
