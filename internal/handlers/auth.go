package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

const stateCookieName = "calsnap_oauth_state"

// stateCookieTTL bounds how long a consent round trip may take.
const stateCookieTTL = 600

func (h *Handler) HandleAuthURL(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieTTL,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	h.writeJSON(w, map[string]string{"authUrl": h.calendar.AuthURL(state)})
}

func (h *Handler) HandleAuthCallback(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Authorization code is required", http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		slog.Warn("OAuth state mismatch", "account_id", accountID)
		http.Redirect(w, r, "/?error=auth_failed", http.StatusFound)
		return
	}

	tokens, err := h.calendar.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("Error handling OAuth callback", "account_id", accountID, "err", err)
		http.Redirect(w, r, "/?error=auth_failed", http.StatusFound)
		return
	}

	var refresh *string
	if tokens.RefreshToken != "" {
		refresh = &tokens.RefreshToken
	}
	if _, err := h.store.UpdateUserTokens(r.Context(), accountID, tokens.AccessToken, refresh); err != nil {
		slog.Error("Failed to store OAuth tokens", "account_id", accountID, "err", err)
		http.Redirect(w, r, "/?error=auth_failed", http.StatusFound)
		return
	}

	slog.Info("Connected Google Calendar", "account_id", accountID)
	http.Redirect(w, r, "/?connected=true", http.StatusFound)
}

func (h *Handler) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	user, err := h.store.GetUser(r.Context(), accountID)
	if err != nil {
		h.writeErr(w, err, "Account not found", "Failed to check auth status")
		return
	}
	h.writeJSON(w, map[string]bool{"isConnected": user.CalendarConnected()})
}

// HandleAuthRefresh swaps the stored refresh token for a new access token.
func (h *Handler) HandleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	user, err := h.store.GetUser(r.Context(), accountID)
	if err != nil {
		h.writeErr(w, err, "Account not found", "Failed to refresh token")
		return
	}
	if user.GoogleRefreshToken == nil || *user.GoogleRefreshToken == "" {
		h.writeError(w, "Google Calendar not connected", http.StatusUnauthorized)
		return
	}

	tokens, err := h.calendar.Refresh(r.Context(), *user.GoogleRefreshToken)
	if err != nil {
		h.writeErr(w, err, "Account not found", "Failed to refresh token")
		return
	}

	var refresh *string
	if tokens.RefreshToken != "" {
		refresh = &tokens.RefreshToken
	}
	if _, err := h.store.UpdateUserTokens(r.Context(), accountID, tokens.AccessToken, refresh); err != nil {
		h.writeErr(w, err, "Account not found", "Failed to refresh token")
		return
	}
	h.writeJSON(w, map[string]bool{"isConnected": true})
}
