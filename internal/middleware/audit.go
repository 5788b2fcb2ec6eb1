package middleware

import (
	"net/http"

	logpkg "github.com/benvon/inbox-gateway/internal/logger"
	"github.com/benvon/inbox-gateway/internal/request"
	"go.uber.org/zap"
)

// Audit logs rejected credentials and failed upstream calls at warn level
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				zap.Int("status_code", wrapped.statusCode),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("ip", logpkg.SanitizeString(request.ClientIP(r), logpkg.MaxGeneralStringLength)),
			}
			switch {
			case wrapped.statusCode == http.StatusUnauthorized || wrapped.statusCode == http.StatusForbidden:
				logger.Warn("security_event", fields...)
			case wrapped.statusCode >= http.StatusInternalServerError:
				logger.Warn("request_failed", fields...)
			}
		})
	}
}
