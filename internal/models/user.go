package models

import "time"

// UserProfile is the locally persisted record of an identity provider subject
type UserProfile struct {
	ID        int64     `json:"id"`
	Auth0ID   string    `json:"auth0_id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
