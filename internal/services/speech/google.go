package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	speechapi "google.golang.org/api/speech/v1"
)

// GoogleEngine transcribes with Cloud Speech-to-Text v1 synchronous recognition
type GoogleEngine struct {
	apiKey   string
	endpoint string
	language string
}

// GoogleOption configures a GoogleEngine
type GoogleOption func(*GoogleEngine)

// WithGoogleEndpoint overrides the Speech API base URL
func WithGoogleEndpoint(endpoint string) GoogleOption {
	return func(e *GoogleEngine) { e.endpoint = endpoint }
}

// WithGoogleLanguage sets the BCP-47 recognition language
func WithGoogleLanguage(code string) GoogleOption {
	return func(e *GoogleEngine) { e.language = code }
}

// NewGoogleEngine creates a Cloud Speech engine authenticated by API key
func NewGoogleEngine(apiKey string, opts ...GoogleOption) *GoogleEngine {
	e := &GoogleEngine{apiKey: apiKey, language: "en-US"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *GoogleEngine) Name() string { return MethodGoogle }

func (e *GoogleEngine) Available(context.Context) bool { return e.apiKey != "" }

func (e *GoogleEngine) Transcribe(ctx context.Context, wav []byte) (*models.TranscriptionResult, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("google speech API key not set: %w", apperr.ErrServiceUnavailable)
	}

	opts := []option.ClientOption{option.WithAPIKey(e.apiKey)}
	if e.endpoint != "" {
		opts = append(opts, option.WithEndpoint(e.endpoint))
	}
	svc, err := speechapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w: %v", apperr.ErrServiceUnavailable, err)
	}

	resp, err := svc.Speech.Recognize(&speechapi.RecognizeRequest{
		Config: &speechapi.RecognitionConfig{
			Encoding:                   "LINEAR16",
			SampleRateHertz:            16000,
			LanguageCode:               e.language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechapi.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(wav)},
	}).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("google speech returned %d: %w: %s", apiErr.Code, apperr.ErrServiceUnavailable, apiErr.Message)
		}
		return nil, fmt.Errorf("google speech request failed: %w: %v", apperr.ErrServiceUnavailable, err)
	}

	return googleResult(resp, e.language)
}

// googleResult joins the top alternative of each sequential result. The
// confidence is that of the first result's top alternative.
func googleResult(resp *speechapi.RecognizeResponse, language string) (*models.TranscriptionResult, error) {
	var (
		segments   []string
		confidence float64
	)
	for i, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		top := r.Alternatives[0]
		if text := strings.TrimSpace(top.Transcript); text != "" {
			segments = append(segments, text)
		}
		if i == 0 {
			confidence = top.Confidence
		}
		if r.LanguageCode != "" {
			language = r.LanguageCode
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("google: %w", apperr.ErrUnintelligible)
	}
	return &models.TranscriptionResult{
		Transcription: strings.Join(segments, " "),
		Method:        MethodGoogle,
		Confidence:    confidence,
		Language:      language,
	}, nil
}
