package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckprint/internal/utils"
)

func protected(t *testing.T, secret string) http.Handler {
	return BridgeAuth(secret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret != "" {
			claims, ok := r.Context().Value(ClaimsContextKey).(jwt.MapClaims)
			require.True(t, ok)
			assert.Equal(t, "surface", claims["sub"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestBridgeAuth(t *testing.T) {
	const secret = "s3cret-for-tests"
	valid, err := utils.GenerateBridgeToken("surface", secret, time.Hour)
	require.NoError(t, err)
	foreign, err := utils.GenerateBridgeToken("surface", "another-secret", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		header string
		query  string
		status int
	}{
		{name: "disabled", secret: "", status: http.StatusNoContent},
		{name: "missing", secret: secret, status: http.StatusUnauthorized},
		{name: "bearer", secret: secret, header: "Bearer " + valid, status: http.StatusNoContent},
		{name: "query", secret: secret, query: valid, status: http.StatusNoContent},
		{name: "malformed header", secret: secret, header: "Token " + valid, status: http.StatusUnauthorized},
		{name: "wrong secret", secret: secret, header: "Bearer " + foreign, status: http.StatusUnauthorized},
		{name: "garbage", secret: secret, query: "abc", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/jobs"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			protected(t, tt.secret).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
