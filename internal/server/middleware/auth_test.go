package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tasksync/internal/server/handlers"
)

var testJWTConfig = handlers.JWTConfig{
	Secret:         []byte("test-secret-key"),
	AccessTokenTTL: 15 * time.Minute,
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signTestToken выпускает токен так, как это делает внешняя подсистема сессий
func signTestToken(t *testing.T, userID string, secret []byte, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := handlers.CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	token := signTestToken(t, "alice", testJWTConfig.Secret, time.Minute)

	var gotUserID, gotToken string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = handlers.GetUserID(r.Context())
		gotToken, _ = handlers.GetToken(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	AuthMiddleware(testLogger(), testJWTConfig)(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", gotUserID)
	// Сырой токен доступен как ключевой материал сессии
	assert.Equal(t, token, gotToken)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	otherSecret := []byte("a completely different secret")

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + signTestToken(t, "alice", otherSecret, time.Minute)},
		{"expired token", "Bearer " + signTestToken(t, "alice", testJWTConfig.Secret, -time.Minute)},
		{"bad user_id claim", "Bearer " + signTestToken(t, "not a valid id!", testJWTConfig.Secret, time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("next handler must not be called")
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			AuthMiddleware(testLogger(), testJWTConfig)(next).ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
