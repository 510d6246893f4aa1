package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/calsnap/internal/calendar"
	"github.com/lehigh-university-libraries/calsnap/internal/common"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
)

func (h *Handler) HandleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "event")
	if !ok {
		return
	}

	var update models.EventUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := update.Validate(); err != nil {
		h.writeErr(w, err, "Event not found", "Failed to update event")
		return
	}

	if _, err := h.ownedEvent(r.Context(), accountID, id); err != nil {
		h.writeErr(w, err, "Event not found", "Failed to update event")
		return
	}
	event, err := h.store.UpdateExtractedEvent(r.Context(), id, update)
	if err != nil {
		h.writeErr(w, err, "Event not found", "Failed to update event")
		return
	}
	h.writeJSON(w, event)
}

func (h *Handler) HandleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "event")
	if !ok {
		return
	}

	if _, err := h.ownedEvent(r.Context(), accountID, id); err != nil {
		h.writeErr(w, err, "Event not found", "Failed to delete event")
		return
	}
	if err := h.store.DeleteExtractedEvent(r.Context(), id); err != nil {
		h.writeErr(w, err, "Event not found", "Failed to delete event")
		return
	}
	h.writeJSON(w, map[string]string{"message": "Event deleted successfully"})
}

// HandleCreateCalendarEvents publishes the requested events to the account's
// Google Calendar and records the calendar id on each one that was created.
func (h *Handler) HandleCreateCalendarEvents(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var request struct {
		EventIDs []int64 `json:"eventIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.EventIDs == nil {
		h.writeError(w, "Event IDs array is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	user, err := h.store.GetUser(ctx, accountID)
	if err != nil {
		h.writeErr(w, err, "Account not found", "Failed to create calendar events")
		return
	}
	if !user.CalendarConnected() {
		h.writeError(w, "Google Calendar not connected", http.StatusUnauthorized)
		return
	}

	events := make([]models.ExtractedEvent, 0, len(request.EventIDs))
	seen := make(map[int64]bool, len(request.EventIDs))
	for _, id := range request.EventIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		event, err := h.ownedEvent(ctx, accountID, id)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			h.writeErr(w, err, "Event not found", "Failed to create calendar events")
			return
		}
		if event.GoogleEventID != nil {
			slog.Warn("Publishing an event that is already on the calendar", "event_id", event.ID, "google_event_id", *event.GoogleEventID)
		}
		events = append(events, *event)
	}
	if len(events) == 0 {
		h.writeError(w, "No valid events found", http.StatusBadRequest)
		return
	}

	drafts := make([]models.EventDraft, len(events))
	for i, e := range events {
		drafts[i] = e.Draft()
	}

	tokens := calendar.Tokens{AccessToken: *user.GoogleAccessToken}
	if user.GoogleRefreshToken != nil {
		tokens.RefreshToken = *user.GoogleRefreshToken
	}
	created, err := h.calendar.Publish(ctx, tokens, drafts)
	if err != nil {
		h.writeErr(w, err, "Event not found", "Failed to create calendar events")
		return
	}

	for _, c := range created {
		if c.Index < 0 || c.Index >= len(events) {
			continue
		}
		if _, err := h.store.SetGoogleEventID(ctx, events[c.Index].ID, c.EventID); err != nil {
			slog.Error("Failed to record calendar event id", "event_id", events[c.Index].ID, "google_event_id", c.EventID, "err", err)
		}
	}

	if created == nil {
		created = []calendar.Created{}
	}
	h.writeJSON(w, map[string]any{
		"message":       "Events created successfully",
		"createdEvents": created,
	})
}
