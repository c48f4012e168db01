package models

import "time"

// Integration is a static catalog entry for an external service.
type Integration struct {
	// Name is the display name, e.g. "Google Calendar".
	Name string `json:"name"`
	// Slug is the URL-safe key, e.g. "google-calendar".
	Slug string `json:"slug"`
	// AppID is the backend toolkit identifier, e.g. "GOOGLECALENDAR".
	AppID string `json:"app_id"`
	// AuthConfigID is the backend auth configuration used to start OAuth.
	AuthConfigID string `json:"auth_config_id,omitempty"`
	Description  string `json:"description"`
}

// IntegrationConnection is the persisted connection state for one
// (user, integration) pair. Once stored it is authoritative.
type IntegrationConnection struct {
	UserID       string         `json:"user_id"`
	Integration  string         `json:"integration"`
	Connected    bool           `json:"connected"`
	ConnectionID string         `json:"connection_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// AuthRequest is an in-flight authorization redirect.
type AuthRequest struct {
	UserID      string    `json:"user_id"`
	Integration string    `json:"integration"`
	RequestID   string    `json:"request_id"`
	RedirectURL string    `json:"redirect_url"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the request is no longer usable at now.
func (r *AuthRequest) Expired(now time.Time) bool {
	return r == nil || !now.Before(r.ExpiresAt)
}
