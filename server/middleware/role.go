package middleware

import (
	"net/http"
	"slices"

	"github.com/godamri/helix-activity/http/response"
	"github.com/godamri/helix-activity/pkg/contextx"
)

// RequireRole admits only principals carrying role. It must run after the
// auth middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(contextx.GetAuthRoles(r.Context()), role) {
				response.ErrorJSON(w, r, http.StatusForbidden, response.ErrForbidden, "role "+role+" required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
