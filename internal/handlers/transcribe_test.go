package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type fakeTranscriber struct {
	err    error
	audio  string
	hint   string
	method string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, hint, method string) (*models.TranscriptionResult, error) {
	f.audio, f.hint, f.method = string(audio), hint, method
	if f.err != nil {
		return nil, f.err
	}
	return &models.TranscriptionResult{Transcription: "hello there", Method: "google", Confidence: 0.91, Language: "en-US"}, nil
}

func (f *fakeTranscriber) Methods(context.Context) *models.TranscriptionMethods {
	return &models.TranscriptionMethods{
		Methods:   map[string]string{"whisper": "OpenAI Whisper"},
		Available: map[string]bool{"whisper": true},
	}
}

type fakeJobs struct {
	submitted string
	jobs      map[string]*models.TranscriptionJob
}

func (f *fakeJobs) Submit(_ context.Context, audio []byte, format, method string) (*models.TranscriptionJob, error) {
	f.submitted = string(audio)
	job := &models.TranscriptionJob{ID: "job-1", Status: models.JobStatusPending, Format: format, Method: method, CreatedAt: time.Unix(0, 0)}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (*models.TranscriptionJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, apperr.ErrNotFound)
	}
	return job, nil
}

func newTranscribeRouter(speech Transcriber, jobs JobService) *mux.Router {
	r := mux.NewRouter()
	NewTranscribeHandler(speech, jobs, 1<<20, zap.NewNop()).RegisterRoutes(r)
	return r
}

func TestTranscribeHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		target     string
		filename   string
		wantHint   string
		wantMethod string
	}{
		{name: "defaults", target: "/api/transcribe", filename: "clip.webm", wantHint: "webm"},
		{name: "format wins over extension", target: "/api/transcribe?format=ogg&method=google", filename: "clip.webm", wantHint: "ogg", wantMethod: "google"},
		{name: "no extension", target: "/api/transcribe", filename: "blob", wantHint: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			speech := &fakeTranscriber{}
			rec := httptest.NewRecorder()
			newTranscribeRouter(speech, nil).ServeHTTP(rec, multipartAudio(t, tt.target, tt.filename, []byte("audio-bytes")))

			if rec.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if speech.audio != "audio-bytes" || speech.hint != tt.wantHint || speech.method != tt.wantMethod {
				t.Errorf("Unexpected call %+v", speech)
			}
			body := decodeBody(t, rec)
			if body["transcription"] != "hello there" || body["method"] != "google" || body["confidence"] != 0.91 || body["language"] != "en-US" {
				t.Errorf("Unexpected body %v", body)
			}
		})
	}
}

func TestTranscribeHandlerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		data       []byte
		wantStatus int
		wantError  string
	}{
		{name: "no audio", data: nil, wantStatus: http.StatusBadRequest, wantError: "No audio file provided"},
		{name: "all failed", data: []byte("x"), err: fmt.Errorf("%w: whisper: boom", apperr.ErrAllMethodsFailed), wantStatus: http.StatusInternalServerError, wantError: "all transcription methods failed"},
		{name: "unsupported", data: []byte("x"), err: apperr.ErrUnsupportedFormat, wantStatus: http.StatusInternalServerError, wantError: "unsupported audio format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			newTranscribeRouter(&fakeTranscriber{err: tt.err}, nil).ServeHTTP(rec, multipartAudio(t, "/api/transcribe", "a.webm", tt.data))

			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if body := decodeBody(t, rec); body["error"] != tt.wantError {
				t.Errorf("Expected %q, got %v", tt.wantError, body["error"])
			}
		})
	}
}

func TestTranscribeMethodsHandler(t *testing.T) {
	t.Parallel()

	rec := serve(newTranscribeRouter(&fakeTranscriber{}, nil), http.MethodGet, "/api/transcribe/methods", "")
	body := decodeBody(t, rec)
	methods, _ := body["methods"].(map[string]any)
	available, _ := body["available"].(map[string]any)
	if methods["whisper"] != "OpenAI Whisper" || available["whisper"] != true {
		t.Errorf("Unexpected body %v", body)
	}
}

func TestTranscriptionJobHandlers(t *testing.T) {
	t.Parallel()

	jobs := &fakeJobs{jobs: map[string]*models.TranscriptionJob{}}
	router := newTranscribeRouter(&fakeTranscriber{}, jobs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartAudio(t, "/api/transcribe/jobs?method=whisper", "memo.m4a", []byte("queued-audio")))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/api/transcribe/jobs/job-1" {
		t.Errorf("Unexpected Location %q", loc)
	}
	job, _ := decodeBody(t, rec)["job"].(map[string]any)
	if job["status"] != "pending" || job["format"] != "m4a" || job["method"] != "whisper" || jobs.submitted != "queued-audio" {
		t.Errorf("Unexpected job %v", job)
	}

	rec = serve(router, http.MethodGet, "/api/transcribe/jobs/job-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if rec := serve(router, http.MethodGet, "/api/transcribe/jobs/unknown", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestTranscriptionJobsNotConfigured(t *testing.T) {
	t.Parallel()

	rec := serve(newTranscribeRouter(&fakeTranscriber{}, nil), http.MethodGet, "/api/transcribe/jobs/job-1", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}
