package models

import "time"

// StoredCredential is the on-disk form of the delegated mailbox's OAuth2 token
type StoredCredential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes"`
}
