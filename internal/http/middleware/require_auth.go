package middleware

import (
	"net/http"

	"github.com/videoplaying/auth-service/internal/http/response"
)

// RequireAuth gates endpoints that must be attributable to a live session.
// The resolver has already done the work; this only checks its verdict.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			response.Error(w, r, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
