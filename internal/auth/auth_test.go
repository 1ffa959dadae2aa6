package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "activity-dedup"}

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":       "owner-1",
		"tenant_id": "tenant-1",
		"iss":       "activity-dedup",
		"scopes":    []string{ScopeActivitiesRead, ScopeActivitiesWrite},
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
}

func TestParseValidToken(t *testing.T) {
	claims, err := Parse(sign(t, testConfig.Secret, validClaims()), testConfig)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", claims.Subject)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.True(t, claims.HasScope(ScopeActivitiesRead))
	assert.True(t, claims.HasScope(ScopeActivitiesWrite))
	assert.False(t, claims.HasScope("admin"))
}

func TestParseSpaceSeparatedScopes(t *testing.T) {
	c := validClaims()
	c["scopes"] = "activities:read  other"
	claims, err := Parse(sign(t, testConfig.Secret, c), testConfig)
	require.NoError(t, err)
	assert.Len(t, claims.Scopes, 2)
}

func TestParseRejectsBadTokens(t *testing.T) {
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	noSubject := validClaims()
	delete(noSubject, "sub")
	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "someone-else"
	noExpiry := validClaims()
	delete(noExpiry, "exp")

	cases := map[string]string{
		"wrong secret": sign(t, "other-secret", validClaims()),
		"expired":      sign(t, testConfig.Secret, expired),
		"no subject":   sign(t, testConfig.Secret, noSubject),
		"wrong issuer": sign(t, testConfig.Secret, wrongIssuer),
		"no expiry":    sign(t, testConfig.Secret, noExpiry),
		"garbage":      "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, testConfig)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err := Parse("  ", testConfig)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig, PublicPaths).Wrap(next)

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/merge-candidates", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, testConfig.Secret, validClaims()))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "owner-1", seen.Subject)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/merge-candidates", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing bearer token")
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/merge-candidates", nil)
		req.Header.Set("Authorization", "Basic abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("health is public", func(t *testing.T) {
		seen = nil
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Nil(t, seen)
	})
}
