package middleware

import (
	"mime"
	"net/http"
)

// ContentType rejects bodies whose media type is not one of allowed. Only
// methods that carry a body are checked.
func ContentType(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
				header := r.Header.Get("Content-Type")
				if header == "" {
					respondError(w, http.StatusBadRequest, "Content-Type header is required")
					return
				}
				mediaType, _, err := mime.ParseMediaType(header)
				if err != nil || !contains(allowed, mediaType) {
					respondError(w, http.StatusUnsupportedMediaType, "Unsupported Content-Type: "+header)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
