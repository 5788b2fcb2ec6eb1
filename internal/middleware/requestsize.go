package middleware

import (
	"fmt"
	"net/http"
)

// DefaultMaxRequestSize bounds request bodies when no limit is configured
const DefaultMaxRequestSize int64 = 25 << 20

// MultipartOverhead leaves room for form boundaries and headers around an
// upload of exactly the configured size
const MultipartOverhead int64 = 64 << 10

// MaxRequestSize limits request bodies to maxBytes plus multipart framing.
// Declared lengths over the limit are refused up front; chunked bodies are
// cut off by http.MaxBytesReader and reported by the handler that reads them.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}
	limit := maxBytes + MultipartOverhead
	message := fmt.Sprintf("Request body exceeds %d bytes", maxBytes)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				respondError(w, http.StatusRequestEntityTooLarge, message)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
