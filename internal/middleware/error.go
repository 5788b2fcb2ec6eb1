package middleware

import (
	"encoding/json"
	"net/http"

	logpkg "github.com/benvon/inbox-gateway/internal/logger"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every error returned by the gateway
type ErrorResponse struct {
	Error string `json:"error"`
}

// Recovery converts panics into a 500 JSON response
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic_recovered",
						zap.Any("error", rec),
						zap.String("path", logpkg.SanitizePath(r.URL.Path)),
						zap.String("method", r.Method),
					)
					respondError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
