package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/benvon/inbox-gateway/internal/queue"
	"github.com/benvon/inbox-gateway/internal/services/transcription"
	"go.uber.org/zap"
)

// Transcriber runs the engine fallback chain on uploaded audio
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, containerHint, method string) (*models.TranscriptionResult, error)
}

// TranscriptionWorker processes queued transcription jobs
type TranscriptionWorker struct {
	speech Transcriber
	store  transcription.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewTranscriptionWorker creates a new transcription worker
func NewTranscriptionWorker(speech Transcriber, store transcription.Store, logger *zap.Logger) *TranscriptionWorker {
	return &TranscriptionWorker{speech: speech, store: store, logger: logger, now: time.Now}
}

// ProcessJob transcribes one queued job and records the outcome. The message
// is acked once the outcome is stored; anything that prevents storing it is
// nacked without requeue so the broker dead-letters it.
func (w *TranscriptionWorker) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	if job.Type != queue.JobTypeTranscription {
		_ = msg.Nack(false)
		return fmt.Errorf("unsupported job type %q", job.Type)
	}
	id := job.ID.String()
	logger := w.logger.With(zap.String("job_id", id))

	record, err := w.store.Get(ctx, id)
	if err != nil {
		_ = msg.Nack(false)
		if errors.Is(err, apperr.ErrNotFound) {
			logger.Warn("transcription_job_missing")
			return nil
		}
		return fmt.Errorf("failed to load job: %w", err)
	}
	if record.Status == models.JobStatusCompleted || record.Status == models.JobStatusFailed {
		// Redelivered after the outcome was stored
		return msg.Ack()
	}

	audio, err := w.store.Audio(ctx, id)
	if err != nil {
		return w.finish(ctx, msg, record, nil, err)
	}

	record.Status = models.JobStatusProcessing
	record.UpdatedAt = w.now().UTC()
	if err := w.store.Update(ctx, record); err != nil {
		_ = msg.Nack(false)
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	start := w.now()
	result, err := w.speech.Transcribe(ctx, audio, record.Format, record.Method)
	logger.Info("transcription_job_processed",
		zap.Bool("success", err == nil),
		zap.Int64("latency_ms", w.now().Sub(start).Milliseconds()),
	)
	return w.finish(ctx, msg, record, result, err)
}

func (w *TranscriptionWorker) finish(ctx context.Context, msg queue.MessageInterface, record *models.TranscriptionJob, result *models.TranscriptionResult, jobErr error) error {
	record.UpdatedAt = w.now().UTC()
	if jobErr != nil {
		record.Status = models.JobStatusFailed
		record.Error = apperr.PublicMessage(jobErr)
	} else {
		record.Status = models.JobStatusCompleted
		record.Result = result
	}

	if err := w.store.Update(ctx, record); err != nil {
		_ = msg.Nack(false)
		return fmt.Errorf("failed to store job outcome: %w", err)
	}
	if jobErr != nil {
		// The failure is recorded on the job; dead-letter the message
		_ = msg.Nack(false)
		return fmt.Errorf("transcription failed: %w", jobErr)
	}
	return msg.Ack()
}
