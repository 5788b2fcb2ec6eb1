package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/gorilla/mux"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	speechapi "google.golang.org/api/speech/v1"
)

type fakeOpenAI struct {
	*httptest.Server
	modelChecks   atomic.Int32
	modelStatus   int
	transcription map[string]any
}

func newFakeOpenAI(t *testing.T, modelStatus int, transcription map[string]any) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{modelStatus: modelStatus, transcription: transcription}

	r := mux.NewRouter()
	r.HandleFunc("/models/{model}", func(w http.ResponseWriter, r *http.Request) {
		f.modelChecks.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if f.modelStatus != http.StatusOK {
			w.WriteHeader(f.modelStatus)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "model not found"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": mux.Vars(r)["model"], "object": "model", "created": 1, "owned_by": "openai",
		})
	}).Methods(http.MethodGet)
	r.HandleFunc("/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("response_format") != "verbose_json" {
			http.Error(w, "unexpected form", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.transcription)
	}).Methods(http.MethodPost)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOpenAI) client() openai.Client {
	return openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(f.URL+"/"),
		option.WithMaxRetries(0),
	)
}

func TestWhisperEngine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("transcribes and verifies the model once", func(t *testing.T) {
		t.Parallel()
		fake := newFakeOpenAI(t, http.StatusOK, map[string]any{"text": "  hello from whisper ", "language": "english", "duration": 1.5})
		engine := NewWhisperEngine(fake.client())

		for i := 0; i < 2; i++ {
			result, err := engine.Transcribe(ctx, []byte("RIFF"))
			if err != nil {
				t.Fatalf("Transcribe failed: %v", err)
			}
			if result.Transcription != "hello from whisper" || result.Language != "english" || result.Confidence != whisperConfidence {
				t.Errorf("Unexpected result %+v", result)
			}
		}
		if got := fake.modelChecks.Load(); got != 1 {
			t.Errorf("Expected one model check, got %d", got)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		t.Parallel()
		fake := newFakeOpenAI(t, http.StatusOK, map[string]any{"text": "   "})
		_, err := NewWhisperEngine(fake.client()).Transcribe(ctx, []byte("RIFF"))
		if !errors.Is(err, apperr.ErrUnintelligible) {
			t.Errorf("Expected ErrUnintelligible, got %v", err)
		}
	})

	t.Run("model unavailable", func(t *testing.T) {
		t.Parallel()
		fake := newFakeOpenAI(t, http.StatusNotFound, map[string]any{"text": "unused"})
		_, err := NewWhisperEngine(fake.client()).Transcribe(ctx, []byte("RIFF"))
		if !errors.Is(err, apperr.ErrServiceUnavailable) {
			t.Errorf("Expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestGoogleEngine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newServer := func(t *testing.T, status int, resp *speechapi.RecognizeResponse) *httptest.Server {
		t.Helper()
		r := mux.NewRouter()
		r.HandleFunc("/v1/speech:recognize", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("key") != "speech-key" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			var req speechapi.RecognizeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			audio, err := base64.StdEncoding.DecodeString(req.Audio.Content)
			if err != nil || string(audio) != "RIFF" || req.Config.SampleRateHertz != 16000 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if status != http.StatusOK {
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": "quota"}})
				return
			}
			_ = json.NewEncoder(w).Encode(resp)
		}).Methods(http.MethodPost)
		srv := httptest.NewServer(r)
		t.Cleanup(srv.Close)
		return srv
	}

	t.Run("joins results and keeps first confidence", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, http.StatusOK, &speechapi.RecognizeResponse{Results: []*speechapi.SpeechRecognitionResult{
			{Alternatives: []*speechapi.SpeechRecognitionAlternative{{Transcript: "good morning", Confidence: 0.91}, {Transcript: "could morning"}}, LanguageCode: "en-us"},
			{Alternatives: []*speechapi.SpeechRecognitionAlternative{{Transcript: "everyone", Confidence: 0.5}}},
		}})
		engine := NewGoogleEngine("speech-key", WithGoogleEndpoint(srv.URL+"/"))

		result, err := engine.Transcribe(ctx, []byte("RIFF"))
		if err != nil {
			t.Fatalf("Transcribe failed: %v", err)
		}
		if result.Transcription != "good morning everyone" || result.Confidence != 0.91 || result.Language != "en-us" {
			t.Errorf("Unexpected result %+v", result)
		}
	})

	t.Run("no results", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, http.StatusOK, &speechapi.RecognizeResponse{})
		_, err := NewGoogleEngine("speech-key", WithGoogleEndpoint(srv.URL+"/")).Transcribe(ctx, []byte("RIFF"))
		if !errors.Is(err, apperr.ErrUnintelligible) {
			t.Errorf("Expected ErrUnintelligible, got %v", err)
		}
	})

	t.Run("api error", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, http.StatusTooManyRequests, nil)
		_, err := NewGoogleEngine("speech-key", WithGoogleEndpoint(srv.URL+"/")).Transcribe(ctx, []byte("RIFF"))
		if !errors.Is(err, apperr.ErrServiceUnavailable) {
			t.Errorf("Expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		engine := NewGoogleEngine("")
		if engine.Available(ctx) {
			t.Error("Expected engine without key to be unavailable")
		}
		if _, err := engine.Transcribe(ctx, []byte("RIFF")); !errors.Is(err, apperr.ErrServiceUnavailable) {
			t.Errorf("Expected ErrServiceUnavailable, got %v", err)
		}
	})
}
