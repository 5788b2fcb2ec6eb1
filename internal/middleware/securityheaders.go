package middleware

import (
	"net/http"
)

// apiSecurityHeaders apply to every response. The API serves JSON, MP3 audio
// and redirects only, so nothing needs to be framed, embedded or cached.
var apiSecurityHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "no-referrer",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	"Permissions-Policy":      "camera=(), microphone=(), geolocation=()",
	"Cache-Control":           "no-store",
}

// SecurityHeaders sets security headers on all responses. HSTS is only sent
// on TLS connections.
func SecurityHeaders(enableHSTS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range apiSecurityHeaders {
				h.Set(name, value)
			}
			if enableHSTS && r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
