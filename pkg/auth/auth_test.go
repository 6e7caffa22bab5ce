package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func runMiddleware(m *Middleware, authHeader string) (*httptest.ResponseRecorder, string) {
	var gotUserID string
	handler := m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec, gotUserID
}

func TestRequireAuth_ValidToken(t *testing.T) {
	m := NewMiddleware(testSecret, true, zap.NewNop())

	rec, userID := runMiddleware(m, "Bearer "+signToken(t, testSecret, "user-42"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", userID)
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	m := NewMiddleware(testSecret, true, zap.NewNop())

	rec, _ := runMiddleware(m, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_WrongSecret(t *testing.T) {
	m := NewMiddleware(testSecret, true, zap.NewNop())

	rec, _ := runMiddleware(m, "Bearer "+signToken(t, "other-secret", "user-42"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	m := NewMiddleware(testSecret, true, zap.NewNop())

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec, _ := runMiddleware(m, "Bearer "+signed)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_MissingSubject(t *testing.T) {
	m := NewMiddleware(testSecret, true, zap.NewNop())

	rec, _ := runMiddleware(m, "Bearer "+signToken(t, testSecret, ""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_VerificationDisabled(t *testing.T) {
	m := NewMiddleware("", false, zap.NewNop())

	// Signed with an arbitrary secret; only the subject claim matters.
	rec, userID := runMiddleware(m, "Bearer "+signToken(t, "whatever", "dev-user"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev-user", userID)
}

func TestRequireUserIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := RequireUserIDFromContext(req.Context())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
