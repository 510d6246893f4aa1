package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/calsnap/internal/storage"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken(42, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	id, err := AccountIDFromToken(token, secret)
	if err != nil {
		t.Fatalf("AccountIDFromToken: %v", err)
	}
	if id != 42 {
		t.Errorf("expected 42, got %d", id)
	}
}

func TestTokenRejected(t *testing.T) {
	secret := []byte("test-secret")

	expired, _ := GenerateToken(42, secret, -time.Minute)
	if _, err := AccountIDFromToken(expired, secret); err == nil {
		t.Error("expired token accepted")
	}

	other, _ := GenerateToken(42, []byte("other-secret"), time.Hour)
	if _, err := AccountIDFromToken(other, secret); err == nil {
		t.Error("token signed with another key accepted")
	}

	if _, err := AccountIDFromToken("not-a-jwt", secret); err == nil {
		t.Error("garbage accepted")
	}
}

func echoAccount(t *testing.T, got *int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := AccountID(r.Context())
		if !ok {
			t.Error("account id missing from context")
		}
		*got = id
	})
}

func TestMiddlewareCreatesGuestThenReusesIt(t *testing.T) {
	store := storage.NewMemory()
	m := NewManager(store, "test-secret", time.Hour, false)

	var first int64
	rec := httptest.NewRecorder()
	m.Middleware(echoAccount(t, &first)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/status", nil))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || !cookies[0].HttpOnly {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}
	if first == 0 {
		t.Fatal("no account assigned")
	}
	user, err := store.GetUser(context.Background(), first)
	if err != nil || user.Username == "" {
		t.Fatalf("guest account not stored: %v", err)
	}

	var second int64
	req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	m.Middleware(echoAccount(t, &second)).ServeHTTP(rec, req)

	if second != first {
		t.Errorf("expected same account %d, got %d", first, second)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("existing session should not be reissued")
	}
}

func TestMiddlewareAcceptsBearer(t *testing.T) {
	store := storage.NewMemory()
	u, _ := store.CreateUser(context.Background(), "cli", "")
	m := NewManager(store, "test-secret", time.Hour, false)
	token, _ := GenerateToken(u.ID, []byte("test-secret"), time.Hour)

	var got int64
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	m.Middleware(echoAccount(t, &got)).ServeHTTP(httptest.NewRecorder(), req)

	if got != u.ID {
		t.Errorf("expected account %d, got %d", u.ID, got)
	}
}

func TestMiddlewareReplacesUnknownAccount(t *testing.T) {
	store := storage.NewMemory()
	m := NewManager(store, "test-secret", time.Hour, false)
	stale, _ := GenerateToken(999, []byte("test-secret"), time.Hour)

	var got int64
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: stale})
	rec := httptest.NewRecorder()
	m.Middleware(echoAccount(t, &got)).ServeHTTP(rec, req)

	if got == 0 || got == 999 {
		t.Errorf("expected a fresh guest account, got %d", got)
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Error("expected a new session cookie")
	}
}
