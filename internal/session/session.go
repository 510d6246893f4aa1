// Package session identifies the account behind each request with a signed
// token carried in a cookie or a bearer header.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/calsnap/internal/storage"
)

const CookieName = "calsnap_session"

var ErrInvalidToken = errors.New("invalid session token")

type Claims struct {
	jwt.RegisteredClaims
	AccountID int64 `json:"aid"`
}

func GenerateToken(accountID int64, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		AccountID: accountID,
	})

	return token.SignedString(secretKey)
}

func AccountIDFromToken(tokenString string, secretKey []byte) (int64, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}

	if !token.Valid || claims.AccountID == 0 {
		return 0, ErrInvalidToken
	}

	return claims.AccountID, nil
}

type ctxKey struct{}

// WithAccountID returns a context carrying the account id.
func WithAccountID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// AccountID returns the account resolved by Middleware.
func AccountID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok
}

// Manager resolves request identity, creating a guest account on first contact.
type Manager struct {
	users  storage.UserStore
	secret []byte
	ttl    time.Duration
	secure bool
}

func NewManager(users storage.UserStore, secret string, ttl time.Duration, secureCookie bool) *Manager {
	return &Manager{users: users, secret: []byte(secret), ttl: ttl, secure: secureCookie}
}

func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.resolve(r)
		if err != nil {
			id, err = m.startGuest(w, r)
			if err != nil {
				slog.Error("Unable to create guest account", "err", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), id)))
	})
}

func (m *Manager) resolve(r *http.Request) (int64, error) {
	token := bearerToken(r)
	if token == "" {
		c, err := r.Cookie(CookieName)
		if err != nil {
			return 0, err
		}
		token = c.Value
	}

	id, err := AccountIDFromToken(token, m.secret)
	if err != nil {
		return 0, err
	}
	// the account may have gone with a discarded database
	if _, err := m.users.GetUser(r.Context(), id); err != nil {
		return 0, err
	}
	return id, nil
}

func (m *Manager) startGuest(w http.ResponseWriter, r *http.Request) (int64, error) {
	user, err := m.users.CreateUser(r.Context(), "guest-"+uuid.NewString(), "")
	if err != nil {
		return 0, err
	}

	token, err := GenerateToken(user.ID, m.secret, m.ttl)
	if err != nil {
		return 0, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Debug("Started guest session", "account_id", user.ID)
	return user.ID, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
