package models

import "time"

// TranscriptionResult is the outcome of a transcription
type TranscriptionResult struct {
	Transcription string  `json:"transcription"`
	Method        string  `json:"method"`
	Confidence    float64 `json:"confidence"`
	Language      string  `json:"language,omitempty"`
}

// TranslationResult is the outcome of a translation
type TranslationResult struct {
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

// DetectionResult is the outcome of language detection
type DetectionResult struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// JobStatus is the lifecycle state of an asynchronous transcription
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// TranscriptionJob tracks an asynchronous transcription request
type TranscriptionJob struct {
	ID        string               `json:"id"`
	Status    JobStatus            `json:"status"`
	Method    string               `json:"method,omitempty"`
	Format    string               `json:"format,omitempty"`
	Result    *TranscriptionResult `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// TranscriptionMethods lists the speech engines and whether each is usable
type TranscriptionMethods struct {
	Methods   map[string]string `json:"methods"`
	Available map[string]bool   `json:"available"`
}
