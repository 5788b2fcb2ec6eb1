package models

// Claims is the verified payload of an inbound access token
type Claims struct {
	Sub         string         `json:"sub"`
	Email       string         `json:"email,omitempty"`
	Name        string         `json:"name,omitempty"`
	Iss         string         `json:"iss"`
	Aud         []string       `json:"aud"`
	Exp         int64          `json:"exp"`
	Iat         int64          `json:"iat,omitempty"`
	Scope       string         `json:"scope,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Raw         map[string]any `json:"-"`
}
