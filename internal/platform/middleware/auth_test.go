package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "unit-test-signing-key"

func signToken(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func TestHS256Validator(t *testing.T) {
	validator := NewHS256Validator(testSigningKey)

	t.Run("valid token yields claims", func(t *testing.T) {
		token := signToken(t, testSigningKey, jwt.MapClaims{"sub": "user-1", "org": "org-1"})

		claims, err := validator.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "org-1", claims.OrganizationID)
	})

	t.Run("wrong key is rejected", func(t *testing.T) {
		token := signToken(t, "some-other-key", jwt.MapClaims{"sub": "user-1"})

		_, err := validator.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("missing sub claim is rejected", func(t *testing.T) {
		token := signToken(t, testSigningKey, jwt.MapClaims{"org": "org-1"})

		_, err := validator.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := validator.ValidateToken("not.a.token")
		assert.Error(t, err)
	})
}

func TestRequireAuth(t *testing.T) {
	validator := NewHS256Validator(testSigningKey)
	logger := slog.New(slog.DiscardHandler)

	var gotUserID, gotOrgID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		gotOrgID = GetOrganizationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAuth(validator, logger)(next)

	t.Run("missing header is unauthorized", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid token is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token stamps identity on the context", func(t *testing.T) {
		token := signToken(t, testSigningKey, jwt.MapClaims{"sub": "user-1", "org": "org-1"})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "user-1", gotUserID)
		assert.Equal(t, "org-1", gotOrgID)
	})
}
