package middleware

import (
	"net/http"
	"time"
)

// DefaultRequestTimeout applies when no timeout is configured
const DefaultRequestTimeout = 2 * time.Minute

const timeoutBody = `{"error":"Request timed out"}`

// Timeout bounds handler execution and cancels the request context when it
// fires. The caller gets a 503 with the usual JSON error body.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		bounded := http.TimeoutHandler(next, timeout, timeoutBody)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Handlers that finish in time overwrite this with their own type
			w.Header().Set("Content-Type", "application/json")
			bounded.ServeHTTP(w, r)
		})
	}
}
