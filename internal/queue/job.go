package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeTranscription asks the worker to transcribe stored audio
	JobTypeTranscription JobType = "transcription"
)

// Job is the queue message. It carries only the id; the audio and the job
// record live in the job store.
type Job struct {
	ID        uuid.UUID  `json:"id"`
	Type      JobType    `json:"type"`
	NotAfter  *time.Time `json:"not_after,omitempty"` // Latest time to process job (nil = no expiration)
	CreatedAt time.Time  `json:"created_at"`
}

// NewJob creates a job that expires after ttl. A zero ttl never expires.
func NewJob(jobType JobType, id uuid.UUID, ttl time.Duration) *Job {
	now := time.Now()
	job := &Job{
		ID:        id,
		Type:      jobType,
		CreatedAt: now,
	}
	if ttl > 0 {
		notAfter := now.Add(ttl)
		job.NotAfter = &notAfter
	}
	return job
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}
