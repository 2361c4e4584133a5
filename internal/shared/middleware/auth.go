package middleware

import (
	"context"
	"net/http"
	"strings"

	"moneta/internal/shared/auth"
)

type contextKey string

const (
	// UserIDKey is the context key holding the authenticated user's id.
	UserIDKey contextKey = "userID"
	// RegionKey is the context key holding the user's region.
	RegionKey contextKey = "region"
)

// Auth validates the access token from the Authorization header or the
// access_token cookie and injects the user's id and region into the
// request context.
func Auth(jwt *auth.JWT) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jwt.Validate(token)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, RegionKey, claims.Region)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return ""
}
