package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/benvon/inbox-gateway/internal/request"
	"github.com/benvon/inbox-gateway/internal/telemetry"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default chat model used for translation
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"

	translateMaxTokens = 1000
	detectMaxTokens    = 50
	temperature        = 0.1

	// defaultDetectionConfidence is reported when the model's answer does
	// not follow the requested format
	defaultDetectionConfidence = 0.8

	DefaultVoice = "alloy"
	MinSpeed     = 0.25
	MaxSpeed     = 4.0
)

// Voices are the text-to-speech voices offered to callers
var Voices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

var detectionPattern = regexp.MustCompile(`(?i)language:\s*([^,]+?)\s*,\s*confidence:\s*(\d+(?:\.\d+)?)\s*%`)

// NewClient creates an OpenAI client with a bounded HTTP timeout
func NewClient(apiKey, baseURL string, timeout time.Duration) openai.Client {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	)
}

// Translator implements translation, language detection, text-to-speech and
// speech-to-text on the OpenAI API
type Translator struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewTranslator creates a translator. Prompt and response previews are only
// logged in debug mode.
func NewTranslator(client openai.Client, model string, logger *zap.Logger, debugMode bool) *Translator {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{client: client, model: model, logger: logger, debugMode: debugMode}
}

// Translate translates text into targetLang. sourceLang "auto" or empty lets
// the model infer the source.
func (t *Translator) Translate(ctx context.Context, text, sourceLang, targetLang string) (result *models.TranslationResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "openai", "translate", attribute.String("target_language", targetLang))
	defer func() { telemetry.End(span, err) }()

	if strings.TrimSpace(text) == "" || strings.TrimSpace(targetLang) == "" {
		return nil, apperr.Validation("Missing required fields: %s", missingTranslateFields(text, targetLang))
	}
	if sourceLang == "" {
		sourceLang = "auto"
	}

	target := LanguageName(targetLang)
	var prompt string
	if strings.EqualFold(sourceLang, "auto") {
		prompt = fmt.Sprintf("Translate the following text to %s. If the text is already in %s, just return it as is:\n\n%s", target, target, text)
	} else {
		prompt = fmt.Sprintf("Translate the following %s text to %s:\n\n%s", LanguageName(sourceLang), target, text)
	}

	content, err := t.complete(ctx, "translate",
		"You are a professional translator. Return only the translated text, nothing else.",
		prompt, translateMaxTokens)
	if err != nil {
		return nil, err
	}

	return &models.TranslationResult{
		TranslatedText: content,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
	}, nil
}

func missingTranslateFields(text, target string) string {
	var missing []string
	if strings.TrimSpace(text) == "" {
		missing = append(missing, "text")
	}
	if strings.TrimSpace(target) == "" {
		missing = append(missing, "target_language")
	}
	return strings.Join(missing, ", ")
}

// DetectLanguage asks the model which language text is written in
func (t *Translator) DetectLanguage(ctx context.Context, text string) (result *models.DetectionResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "openai", "detect_language")
	defer func() { telemetry.End(span, err) }()

	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("Missing required fields: text")
	}

	content, err := t.complete(ctx, "detect_language",
		"You are a language detection expert. Respond in format: 'Language: [language], Confidence: [percentage]%'",
		"What language is this text written in? Respond with only the language name and a confidence percentage (0-100):\n\n"+text,
		detectMaxTokens)
	if err != nil {
		return nil, err
	}
	return parseDetection(content), nil
}

// parseDetection reads "Language: X, Confidence: Y%". Anything else is
// returned verbatim as the language with a default confidence.
func parseDetection(content string) *models.DetectionResult {
	m := detectionPattern.FindStringSubmatch(content)
	if m == nil {
		return &models.DetectionResult{Language: content, Confidence: defaultDetectionConfidence}
	}
	pct, err := strconv.ParseFloat(m[2], 64)
	if err != nil || pct > 100 {
		return &models.DetectionResult{Language: m[1], Confidence: defaultDetectionConfidence}
	}
	return &models.DetectionResult{Language: m[1], Confidence: pct / 100}
}

// TextToSpeech synthesizes text with tts-1 and returns MP3 bytes. An empty
// voice means alloy and a zero speed means 1.0.
func (t *Translator) TextToSpeech(ctx context.Context, text, voice string, speed float64) (audio []byte, err error) {
	ctx, span := telemetry.StartSpan(ctx, "openai", "text_to_speech", attribute.String("voice", voice))
	defer func() { telemetry.End(span, err) }()

	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("Missing required fields: text")
	}
	if voice == "" {
		voice = DefaultVoice
	}
	voice = strings.ToLower(voice)
	if !slices.Contains(Voices, voice) {
		return nil, apperr.Validation("voice must be one of: %s", strings.Join(Voices, ", "))
	}
	if speed == 0 {
		speed = 1.0
	}
	if speed < MinSpeed || speed > MaxSpeed {
		return nil, apperr.Validation("speed must be between %.2f and %.1f", MinSpeed, MaxSpeed)
	}

	start := time.Now()
	resp, err := t.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModelTTS1,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		Speed:          openai.Float(speed),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, t.upstream(ctx, "text_to_speech", err, time.Since(start))
	}
	defer func() { _ = resp.Body.Close() }()

	audio, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream("text_to_speech", fmt.Errorf("failed to read audio: %w", err))
	}
	t.logger.Info("speech_synthesized",
		zap.String("voice", voice),
		zap.Int("text_length", len(text)),
		zap.Int("audio_bytes", len(audio)),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()))
	return audio, nil
}

// SpeechToText transcribes audio with whisper-1. language is an optional
// ISO-639-1 hint.
func (t *Translator) SpeechToText(ctx context.Context, audio io.Reader, filename, language string) (text string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "openai", "speech_to_text")
	defer func() { telemetry.End(span, err) }()

	if filename == "" {
		filename = "audio.webm"
	}
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, contentType),
		Model: openai.AudioModelWhisper1,
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	start := time.Now()
	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", t.upstream(ctx, "speech_to_text", err, time.Since(start))
	}
	return strings.TrimSpace(resp.Text), nil
}

// complete runs a single low-temperature chat completion and returns the
// trimmed content of the first choice
func (t *Translator) complete(ctx context.Context, op, system, prompt string, maxTokens int64) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	}

	requestID := request.RequestID(ctx)
	if t.debugMode {
		t.logger.Debug("llm_api_request",
			zap.String("operation", op),
			zap.String("model", t.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", preview(prompt)),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := t.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return "", t.upstream(ctx, op, err, latency)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Upstream(op, errors.New(ErrNoChoicesInResponse))
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	if t.debugMode {
		t.logger.Debug("llm_api_response",
			zap.String("operation", op),
			zap.String("model", t.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", preview(content)),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return content, nil
}

// upstream logs provider error details and folds the error into ErrUpstream
func (t *Translator) upstream(ctx context.Context, op string, err error, latency time.Duration) error {
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("model", t.model),
		zap.String("request_id", request.RequestID(ctx)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	}
	if apiErr := ExtractAPIError(err); apiErr != nil {
		fields = append(fields,
			zap.Int("status_code", apiErr.StatusCode),
			zap.String("error_type", apiErr.Type),
			zap.String("error_code", apiErr.Code),
			zap.Bool("rate_limited", IsRateLimitError(err)),
			zap.Bool("quota_exceeded", IsQuotaError(err)),
		)
	}
	t.logger.Error("llm_api_error", append(fields, zap.Error(err))...)
	return apperr.Upstream(op, err)
}
