package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/benvon/inbox-gateway/internal/apperr"
	logpkg "github.com/benvon/inbox-gateway/internal/logger"
	"github.com/benvon/inbox-gateway/internal/middleware"
	"github.com/benvon/inbox-gateway/internal/request"
	"github.com/benvon/inbox-gateway/internal/validation"
	"go.uber.org/zap"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondJSONError sends {"error": message} with the given status
func respondJSONError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondError maps err to its status and caller-safe message. Server errors
// are logged with the underlying cause.
func respondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := apperr.StatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request_failed",
			zap.String("method", r.Method),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
			zap.String("request_id", request.RequestID(r.Context())),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	respondJSONError(w, status, apperr.PublicMessage(err))
}

// decodeJSON reads a JSON body into v and validates it
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("No data provided")
		}
		return apperr.Validation("Invalid JSON body")
	}
	return validation.Struct(v)
}

// readAudio returns the multipart "audio" file and its name. The file itself
// may be up to maxBytes; the body also gets room for multipart framing.
func readAudio(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+middleware.MultipartOverhead)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", apperr.Validation("Audio file exceeds %d bytes", maxBytes)
		}
		return nil, "", apperr.Validation("No audio file provided")
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, "", apperr.Validation("No audio file provided")
	}
	defer func() { _ = file.Close() }()

	if header.Filename == "" {
		return nil, "", apperr.Validation("No file selected")
	}
	if header.Size > maxBytes {
		return nil, "", apperr.Validation("Audio file exceeds %d bytes", maxBytes)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", apperr.Validation("Failed to read audio file")
	}
	return data, header.Filename, nil
}

// queryInt parses an integer query parameter, returning def when absent or
// malformed
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
