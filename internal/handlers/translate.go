package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/benvon/inbox-gateway/internal/services/ai"
	"github.com/benvon/inbox-gateway/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TranslationService is the hosted language model
type TranslationService interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (*models.TranslationResult, error)
	DetectLanguage(ctx context.Context, text string) (*models.DetectionResult, error)
	TextToSpeech(ctx context.Context, text, voice string, speed float64) ([]byte, error)
	SpeechToText(ctx context.Context, audio io.Reader, filename, language string) (string, error)
}

// TranslateHandler serves translation, detection and speech synthesis
type TranslateHandler struct {
	translator TranslationService
	maxBytes   int64
	logger     *zap.Logger
}

// NewTranslateHandler creates a new translation handler
func NewTranslateHandler(translator TranslationService, maxBytes int64, logger *zap.Logger) *TranslateHandler {
	return &TranslateHandler{translator: translator, maxBytes: maxBytes, logger: logger}
}

// RegisterPublicRoutes registers routes that need no bearer token
func (h *TranslateHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/api/translate/languages", h.Languages).Methods(http.MethodGet)
}

// RegisterRoutes registers routes on a router guarded by the auth middleware
func (h *TranslateHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/translate", h.Translate).Methods(http.MethodPost)
	r.HandleFunc("/api/translate/detect", h.Detect).Methods(http.MethodPost)
	r.HandleFunc("/api/translate/tts", h.TextToSpeech).Methods(http.MethodPost)
	r.HandleFunc("/api/translate/stt", h.SpeechToText).Methods(http.MethodPost)
}

// Translate handles POST /api/translate
func (h *TranslateHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req models.TranslateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	result, err := h.translator.Translate(r.Context(), validation.SanitizeText(req.Text), req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Detect handles POST /api/translate/detect
func (h *TranslateHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req models.DetectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	result, err := h.translator.DetectLanguage(r.Context(), validation.SanitizeText(req.Text))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// TextToSpeech handles POST /api/translate/tts and streams MP3 audio
func (h *TranslateHandler) TextToSpeech(w http.ResponseWriter, r *http.Request) {
	var req models.SpeechRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	audio, err := h.translator.TextToSpeech(r.Context(), validation.SanitizeText(req.Text), req.Voice, req.Speed)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, bytes.NewReader(audio)); err != nil {
		h.logger.Warn("speech_write_failed", zap.Error(err))
	}
}

// SpeechToText handles POST /api/translate/stt?language=
func (h *TranslateHandler) SpeechToText(w http.ResponseWriter, r *http.Request) {
	audio, filename, err := readAudio(w, r, h.maxBytes)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	text, err := h.translator.SpeechToText(r.Context(), bytes.NewReader(audio), filename, r.URL.Query().Get("language"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

// Languages handles GET /api/translate/languages
func (h *TranslateHandler) Languages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"languages": ai.SupportedLanguages(),
		"voices":    ai.Voices,
	})
}
