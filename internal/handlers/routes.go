package handlers

import "net/http"

// Identity resolves the account behind a request into its context.
type Identity interface {
	Middleware(next http.Handler) http.Handler
}

// Routes registers every endpoint. All but the healthcheck run behind the
// identity middleware.
func (h *Handler) Routes(identity Identity) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/upload-schedule", h.HandleUpload)
	api.HandleFunc("GET /api/schedules", h.HandleListSchedules)
	api.HandleFunc("GET /api/schedule/{id}", h.HandleGetSchedule)
	api.HandleFunc("GET /api/schedule/{id}/calendar.ics", h.HandleScheduleICS)
	api.HandleFunc("PATCH /api/events/{id}", h.HandleUpdateEvent)
	api.HandleFunc("DELETE /api/events/{id}", h.HandleDeleteEvent)
	api.HandleFunc("POST /api/create-calendar-events", h.HandleCreateCalendarEvents)
	api.HandleFunc("GET /api/auth/google", h.HandleAuthURL)
	api.HandleFunc("GET /auth/google/callback", h.HandleAuthCallback)
	api.HandleFunc("GET /api/auth/status", h.HandleAuthStatus)
	api.HandleFunc("POST /api/auth/refresh", h.HandleAuthRefresh)
	api.HandleFunc("GET /", h.HandleIndex)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", h.HandleHealthcheck)
	mux.Handle("/", identity.Middleware(api))
	return mux
}
