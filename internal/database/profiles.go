package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
)

// ProfileStore persists one user row per identity provider subject
type ProfileStore struct {
	db  *DB
	now func() time.Time
}

// NewProfileStore creates a new profile store
func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db, now: time.Now}
}

// GetOrCreate returns the profile for subject, inserting it first if absent.
// The insert ignores conflicts on auth0_id so concurrent first requests for
// the same subject converge on a single row.
func (s *ProfileStore) GetOrCreate(ctx context.Context, subject, email, name string) (*models.UserProfile, error) {
	if subject == "" {
		return nil, apperr.Validation("subject is required")
	}

	var namePtr *string
	if name != "" {
		namePtr = &name
	}

	now := s.now().UTC()
	query := `
		INSERT INTO users (auth0_id, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (auth0_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, subject, email, namePtr, now, now); err != nil {
		return nil, fmt.Errorf("failed to create user profile: %w", err)
	}

	return s.GetBySubject(ctx, subject)
}

// GetBySubject retrieves a profile by its auth0_id
func (s *ProfileStore) GetBySubject(ctx context.Context, subject string) (*models.UserProfile, error) {
	profile := &models.UserProfile{}
	query := `
		SELECT id, auth0_id, email, name, created_at, updated_at
		FROM users
		WHERE auth0_id = $1
	`

	err := s.db.QueryRowContext(ctx, query, subject).Scan(
		&profile.ID,
		&profile.Auth0ID,
		&profile.Email,
		&profile.Name,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user profile: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	return profile, nil
}

// Count returns the number of stored profiles
func (s *ProfileStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count user profiles: %w", err)
	}
	return n, nil
}
