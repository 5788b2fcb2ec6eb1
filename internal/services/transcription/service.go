package transcription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/benvon/inbox-gateway/internal/queue"
	"github.com/benvon/inbox-gateway/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists job records and their audio
type Store interface {
	Create(ctx context.Context, job *models.TranscriptionJob, audio []byte) error
	Get(ctx context.Context, id string) (*models.TranscriptionJob, error)
	Audio(ctx context.Context, id string) ([]byte, error)
	Update(ctx context.Context, job *models.TranscriptionJob) error
}

// Enqueuer publishes jobs for the worker
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// Service accepts transcription jobs from the HTTP layer
type Service struct {
	store  Store
	queue  Enqueuer
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a job service. Queued messages expire with the job.
func NewService(store Store, q Enqueuer, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &Service{store: store, queue: q, ttl: ttl, logger: logger, now: time.Now}
}

// Submit stores audio as a pending job and queues it
func (s *Service) Submit(ctx context.Context, audio []byte, format, method string) (*models.TranscriptionJob, error) {
	if len(audio) == 0 {
		return nil, apperr.Validation("No audio file provided")
	}

	id := uuid.New()
	now := s.now().UTC()
	job := &models.TranscriptionJob{
		ID:        id.String(),
		Status:    models.JobStatusPending,
		Method:    strings.ToLower(method),
		Format:    strings.ToLower(format),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, job, audio); err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, queue.NewJob(queue.JobTypeTranscription, id, s.ttl)); err != nil {
		job.Status = models.JobStatusFailed
		job.Error = "failed to queue job"
		job.UpdatedAt = s.now().UTC()
		if updateErr := s.store.Update(ctx, job); updateErr != nil {
			s.logger.Warn("transcription_job_update_failed", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrServiceUnavailable, err)
	}

	s.logger.Info("transcription_job_queued",
		zap.String("job_id", job.ID),
		zap.String("method", job.Method),
		zap.String("format", job.Format),
		zap.Int("audio_bytes", len(audio)),
		zap.String("request_id", request.RequestID(ctx)),
	)
	return job, nil
}

// Get returns a job by id
func (s *Service) Get(ctx context.Context, id string) (*models.TranscriptionJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, apperr.ErrNotFound)
	}
	return s.store.Get(ctx, id)
}
