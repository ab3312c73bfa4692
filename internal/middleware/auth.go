package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/xelth-com/proxyfleet/internal/utils"
)

type contextKey string

// UserContextKey carries JWT claims for requests authenticated as operators
const UserContextKey contextKey = "user"

// Auth authenticates API requests. The bearer token is either the static
// client API token or an operator JWT issued by the login endpoint.
func Auth(apiToken, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}
			token := parts[1]

			if apiToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(apiToken)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := utils.ValidateToken(token, jwtSecret)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
