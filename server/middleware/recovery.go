package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/godamri/helix-activity/http/response"
)

// PanicRecovery turns a handler panic into a 500 envelope. The process
// stays alive and the stack is logged, never returned.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.ErrorContext(r.Context(), "HTTP PANIC RECOVERED",
					"error", fmt.Sprintf("%v", rec),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				response.ErrorJSON(w, r, http.StatusInternalServerError, response.ErrSystem, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
