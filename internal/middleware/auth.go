package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/utils"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// BridgeAuth verifies bridge tokens. The token is taken from a Bearer
// Authorization header or, for websocket upgrades from the embedded
// surface, the "token" query parameter. An empty secret disables the check.
func BridgeAuth(secret string, log *zap.Logger) func(http.Handler) http.Handler {
	log = logger.OrNop(log).Named("auth")
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := tokenFrom(r)
			if !ok {
				http.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}

			claims, err := utils.ValidateToken(tokenString, secret)
			if err != nil {
				log.Info("rejected bridge token", zap.String("path", r.URL.Path), zap.Error(err))
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			// Add claims to context
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFrom(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		// Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, true
	}
	return "", false
}
