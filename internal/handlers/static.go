package handlers

import "net/http"

// HandleIndex serves the static frontend when one is configured and a
// service index otherwise.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if h.opts.StaticDir != "" {
		http.FileServer(http.Dir(h.opts.StaticDir)).ServeHTTP(w, r)
		return
	}

	if r.URL.Path != "/" {
		h.writeError(w, "Not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, map[string]any{
		"service": "calsnap",
		"endpoints": []string{
			"POST /api/upload-schedule",
			"GET /api/schedules",
			"GET /api/schedule/{id}",
			"GET /api/schedule/{id}/calendar.ics",
			"PATCH /api/events/{id}",
			"DELETE /api/events/{id}",
			"POST /api/create-calendar-events",
			"GET /api/auth/google",
			"GET /api/auth/status",
			"POST /api/auth/refresh",
		},
	})
}

func (h *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("OK"))
}
