package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/benvon/inbox-gateway/internal/models"
)

type contextKey string

const (
	claimsContextKey    contextKey = "claims"
	requestIDContextKey contextKey = "request_id"
)

// ClaimsContextKey returns the context key used for verified claims. Exposed for tests that inject non-claims values.
func ClaimsContextKey() contextKey { return claimsContextKey }

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// WithClaims returns a context carrying the verified token claims.
func WithClaims(ctx context.Context, claims *models.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the verified claims, or nil if missing or wrong type.
func ClaimsFromContext(r *http.Request) *models.Claims {
	c, _ := r.Context().Value(claimsContextKey).(*models.Claims)
	return c
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestID returns the request id from ctx, or "" if none was assigned.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
