// Package speech normalizes uploaded audio and dispatches it to one of several
// speech-to-text engines, falling back across engines when none is requested.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/benvon/inbox-gateway/internal/telemetry"
	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Engine names
const (
	MethodWhisper = "whisper"
	MethodGoogle  = "google"
	MethodSphinx  = "sphinx"
)

// fallbackOrder is the order engines are tried when no method is requested
var fallbackOrder = []string{MethodWhisper, MethodGoogle, MethodSphinx}

var descriptions = map[string]string{
	MethodWhisper: "OpenAI Whisper (hosted, most accurate)",
	MethodGoogle:  "Google Cloud Speech-to-Text (requires internet)",
	MethodSphinx:  "CMU Sphinx (offline, fast but less accurate)",
}

// defaultContainer is what browser MediaRecorder produces
const defaultContainer = "webm"

var fallbackContainers = []string{"wav", "mp3", "ogg", "m4a"}

// sniffable maps mimetype extensions to the container names the decoder accepts
var sniffable = map[string]string{
	"webm": "webm",
	"wav":  "wav",
	"mp3":  "mp3",
	"ogg":  "ogg",
	"oga":  "ogg",
	"opus": "ogg",
	"m4a":  "m4a",
	"mp4":  "m4a",
	"flac": "flac",
	"aac":  "aac",
}

// Decoder converts audio in the named container to mono 16 kHz 16-bit PCM WAV
type Decoder interface {
	Decode(ctx context.Context, audio []byte, container string) ([]byte, error)
}

// Engine turns normalized WAV audio into text
type Engine interface {
	Name() string
	Available(ctx context.Context) bool
	Transcribe(ctx context.Context, wav []byte) (*models.TranscriptionResult, error)
}

// Gateway normalizes audio and routes it to the configured engines
type Gateway struct {
	decoder Decoder
	engines map[string]Engine
	timeout time.Duration
	logger  *zap.Logger
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

// WithEngine registers an engine under its name
func WithEngine(e Engine) GatewayOption {
	return func(g *Gateway) { g.engines[e.Name()] = e }
}

// WithEngineTimeout bounds each engine call
func WithEngineTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.timeout = d }
}

// NewGateway creates a transcription gateway. Engines that are not
// registered are reported unavailable.
func NewGateway(decoder Decoder, logger *zap.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		decoder: decoder,
		engines: make(map[string]Engine),
		timeout: 60 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Transcribe decodes audio and runs it through the requested engine, or
// through every engine in fallback order when method is empty or unknown
func (g *Gateway) Transcribe(ctx context.Context, audio []byte, containerHint, method string) (result *models.TranscriptionResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "speech", "transcribe",
		attribute.String("method", method), attribute.Int("audio_bytes", len(audio)))
	defer func() { telemetry.End(span, err) }()

	if len(audio) == 0 {
		return nil, apperr.Validation("No audio file provided")
	}

	wav, err := g.normalize(ctx, audio, containerHint)
	if err != nil {
		return nil, err
	}

	method = strings.ToLower(strings.TrimSpace(method))
	if _, known := descriptions[method]; known {
		return g.run(ctx, method, wav)
	}

	var failures []string
	for _, name := range fallbackOrder {
		result, err := g.run(ctx, name, wav)
		if err == nil {
			return result, nil
		}
		g.logger.Warn("transcription_method_failed", zap.String("method", name), zap.Error(err))
		failures = append(failures, name+": "+err.Error())
	}
	return nil, fmt.Errorf("%w: %s", apperr.ErrAllMethodsFailed, strings.Join(failures, "; "))
}

func (g *Gateway) run(ctx context.Context, name string, wav []byte) (*models.TranscriptionResult, error) {
	engine, ok := g.engines[name]
	if !ok {
		return nil, fmt.Errorf("%s is not configured: %w", name, apperr.ErrServiceUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := engine.Transcribe(ctx, wav)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out: %w", name, apperr.ErrServiceUnavailable)
		}
		return nil, err
	}
	g.logger.Info("transcription_completed",
		zap.String("method", result.Method),
		zap.Float64("confidence", result.Confidence),
		zap.Int("characters", len(result.Transcription)))
	return result, nil
}

// normalize tries each candidate container until the decoder succeeds
func (g *Gateway) normalize(ctx context.Context, audio []byte, hint string) ([]byte, error) {
	var lastErr error
	for _, container := range candidateContainers(audio, hint) {
		wav, err := g.decoder.Decode(ctx, audio, container)
		if err == nil {
			return wav, nil
		}
		if ctx.Err() != nil {
			return nil, apperr.Upstream("decode audio", ctx.Err())
		}
		g.logger.Debug("audio_decode_failed", zap.String("container", container), zap.Error(err))
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", apperr.ErrUnsupportedFormat, lastErr)
}

// candidateContainers orders container guesses: the caller's hint, the
// sniffed type, webm, then the fixed fallbacks. Duplicates are dropped.
func candidateContainers(audio []byte, hint string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(c string) {
		c = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c), "."))
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}

	add(hint)
	if sniffed, ok := sniffable[strings.TrimPrefix(mimetype.Detect(audio).Extension(), ".")]; ok {
		add(sniffed)
	}
	add(defaultContainer)
	for _, c := range fallbackContainers {
		add(c)
	}
	return out
}

// Methods reports every known engine and whether it is usable
func (g *Gateway) Methods(ctx context.Context) *models.TranscriptionMethods {
	out := &models.TranscriptionMethods{
		Methods:   make(map[string]string, len(descriptions)),
		Available: make(map[string]bool, len(descriptions)),
	}
	for name, desc := range descriptions {
		out.Methods[name] = desc
		engine, ok := g.engines[name]
		out.Available[name] = ok && engine.Available(ctx)
	}
	return out
}
