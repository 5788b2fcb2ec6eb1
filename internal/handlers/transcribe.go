package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Transcriber converts uploaded audio to text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, containerHint, method string) (*models.TranscriptionResult, error)
	Methods(ctx context.Context) *models.TranscriptionMethods
}

// JobService queues transcriptions for the worker and reports their state
type JobService interface {
	Submit(ctx context.Context, audio []byte, format, method string) (*models.TranscriptionJob, error)
	Get(ctx context.Context, id string) (*models.TranscriptionJob, error)
}

// TranscribeHandler serves synchronous and queued transcription
type TranscribeHandler struct {
	speech   Transcriber
	jobs     JobService
	maxBytes int64
	logger   *zap.Logger
}

// NewTranscribeHandler creates a new transcription handler. jobs may be nil
// when no queue is configured.
func NewTranscribeHandler(speech Transcriber, jobs JobService, maxBytes int64, logger *zap.Logger) *TranscribeHandler {
	return &TranscribeHandler{speech: speech, jobs: jobs, maxBytes: maxBytes, logger: logger}
}

// RegisterRoutes registers transcription routes
func (h *TranscribeHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/transcribe", h.Transcribe).Methods(http.MethodPost)
	r.HandleFunc("/api/transcribe/methods", h.Methods).Methods(http.MethodGet)
	r.HandleFunc("/api/transcribe/jobs", h.SubmitJob).Methods(http.MethodPost)
	r.HandleFunc("/api/transcribe/jobs/{id}", h.GetJob).Methods(http.MethodGet)
}

// Transcribe handles POST /api/transcribe?method=&format=
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	audio, filename, err := readAudio(w, r, h.maxBytes)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	result, err := h.speech.Transcribe(r.Context(), audio, containerHint(r, filename), r.URL.Query().Get("method"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Methods handles GET /api/transcribe/methods
func (h *TranscribeHandler) Methods(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.speech.Methods(r.Context()))
}

// SubmitJob handles POST /api/transcribe/jobs
func (h *TranscribeHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Asynchronous transcription is not configured")
		return
	}
	audio, filename, err := readAudio(w, r, h.maxBytes)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	job, err := h.jobs.Submit(r.Context(), audio, containerHint(r, filename), r.URL.Query().Get("method"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/transcribe/jobs/"+job.ID)
	respondJSON(w, http.StatusAccepted, map[string]any{"job": job})
}

// GetJob handles GET /api/transcribe/jobs/{id}
func (h *TranscribeHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Asynchronous transcription is not configured")
		return
	}
	job, err := h.jobs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"job": job})
}

// containerHint prefers the format query parameter and falls back to the
// uploaded file's extension
func containerHint(r *http.Request, filename string) string {
	if format := r.URL.Query().Get("format"); format != "" {
		return format
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}
