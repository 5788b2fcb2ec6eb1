// Package transcription queues audio for the worker and tracks job state in
// redis.
package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultJobTTL bounds how long a job and its audio are kept
const DefaultJobTTL = 24 * time.Hour

const (
	jobKeyPrefix   = "transcription:job:"
	audioKeyPrefix = "transcription:audio:"
)

// RedisStore keeps job records and their pending audio in redis
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore creates a store whose keys expire after ttl
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// TTL returns the key lifetime
func (s *RedisStore) TTL() time.Duration {
	return s.ttl
}

// Create writes a new job and its audio atomically
func (s *RedisStore) Create(ctx context.Context, job *models.TranscriptionJob, audio []byte) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKeyPrefix+job.ID, data, s.ttl)
		pipe.Set(ctx, audioKeyPrefix+job.ID, audio, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the job record
func (s *RedisStore) Get(ctx context.Context, id string) (*models.TranscriptionJob, error) {
	data, err := s.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("job %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", id, err)
	}
	var job models.TranscriptionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

// Audio returns the uploaded audio of a job that has not finished
func (s *RedisStore) Audio(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, audioKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("audio for job %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audio for job %s: %w", id, err)
	}
	return data, nil
}

// Update overwrites the job record without extending its expiry. Audio is
// dropped once the job reaches a final state.
func (s *RedisStore) Update(ctx context.Context, job *models.TranscriptionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	final := job.Status == models.JobStatusCompleted || job.Status == models.JobStatusFailed
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKeyPrefix+job.ID, data, redis.KeepTTL)
		if final {
			pipe.Del(ctx, audioKeyPrefix+job.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	return nil
}

// Ping verifies redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
