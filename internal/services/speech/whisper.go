package speech

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/openai/openai-go/v3"
)

const whisperConfidence = 0.95

// WhisperEngine transcribes with the hosted whisper-1 model
type WhisperEngine struct {
	client openai.Client

	mu       sync.Mutex
	verified bool
}

// NewWhisperEngine creates a whisper engine on an OpenAI client
func NewWhisperEngine(client openai.Client) *WhisperEngine {
	return &WhisperEngine{client: client}
}

func (e *WhisperEngine) Name() string { return MethodWhisper }

func (e *WhisperEngine) Available(context.Context) bool { return true }

// ensureModel checks once that whisper-1 is reachable before the first
// transcription. A failed check is retried on the next call.
func (e *WhisperEngine) ensureModel(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.verified {
		return nil
	}
	if _, err := e.client.Models.Get(ctx, string(openai.AudioModelWhisper1)); err != nil {
		return fmt.Errorf("whisper model unavailable: %w: %v", apperr.ErrServiceUnavailable, err)
	}
	e.verified = true
	return nil
}

func (e *WhisperEngine) Transcribe(ctx context.Context, wav []byte) (*models.TranscriptionResult, error) {
	if err := e.ensureModel(ctx); err != nil {
		return nil, err
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model:          openai.AudioModelWhisper1,
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w: %v", apperr.ErrServiceUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, fmt.Errorf("whisper: %w", apperr.ErrUnintelligible)
	}
	language := resp.Language
	if language == "" {
		language = "unknown"
	}
	return &models.TranscriptionResult{
		Transcription: text,
		Method:        MethodWhisper,
		Confidence:    whisperConfidence,
		Language:      language,
	}, nil
}
