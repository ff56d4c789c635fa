package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneprompteu/oneprompt/internal/auth"
)

const testSecret = "test-secret-at-least-16-chars"

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := auth.NewTokenService("short")
	assert.Error(t, err)
}

func TestGenerateAndValidate(t *testing.T) {
	svc, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	token, err := svc.Generate("orchestrator")
	require.NoError(t, err)

	caller, err := svc.Validate(token)
	assert.NoError(t, err)
	assert.Equal(t, "orchestrator", caller)
}

func TestValidate_Failures(t *testing.T) {
	svc, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.Validate("not.a.token")
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := auth.NewTokenService("a-completely-different-secret")
		require.NoError(t, err)
		token, err := other.Generate("orchestrator")
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := svc.GenerateWithDuration("orchestrator", -time.Minute)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "expired")
	})
}

func TestRequireAuth(t *testing.T) {
	svc, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	var gotCaller string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller, _ = auth.CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	protected := auth.RequireAuth(svc)(next)

	t.Run("valid token passes and sets caller", func(t *testing.T) {
		token, err := svc.Generate("orchestrator")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/libraries", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		protected.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "orchestrator", gotCaller)
	})

	t.Run("missing header is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/libraries", nil)
		rr := httptest.NewRecorder()

		protected.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("malformed header is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/libraries", nil)
		req.Header.Set("Authorization", "Token abc")
		rr := httptest.NewRecorder()

		protected.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
