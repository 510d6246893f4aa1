package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/lehigh-university-libraries/calsnap/internal/export"
)

func (h *Handler) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "schedule")
	if !ok {
		return
	}

	img, err := h.ownedSchedule(r.Context(), accountID, id)
	if err != nil {
		h.writeErr(w, err, "Schedule not found", "Failed to fetch schedule")
		return
	}
	events, err := h.store.ListExtractedEvents(r.Context(), id)
	if err != nil {
		h.writeErr(w, err, "Schedule not found", "Failed to fetch schedule")
		return
	}

	h.writeJSON(w, map[string]any{
		"schedule": img,
		"events":   events,
	})
}

func (h *Handler) HandleListSchedules(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	schedules, err := h.store.ListScheduleImagesByUser(r.Context(), accountID)
	if err != nil {
		h.writeErr(w, err, "Account not found", "Failed to list schedules")
		return
	}
	h.writeJSON(w, schedules)
}

// HandleScheduleICS downloads a schedule's events as an iCalendar file.
func (h *Handler) HandleScheduleICS(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "schedule")
	if !ok {
		return
	}

	if _, err := h.ownedSchedule(r.Context(), accountID, id); err != nil {
		h.writeErr(w, err, "Schedule not found", "Failed to export schedule")
		return
	}
	events, err := h.store.ListExtractedEvents(r.Context(), id)
	if err != nil {
		h.writeErr(w, err, "Schedule not found", "Failed to export schedule")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteICS(&buf, events, h.opts.Location); err != nil {
		h.writeErr(w, err, "Schedule not found", "Failed to export schedule")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="schedule-%d.ics"`, id))
	_, _ = w.Write(buf.Bytes())
}
