package models

import "time"

// OAuthClientInfo is a dynamically registered OAuth client.
type OAuthClientInfo struct {
	ClientID              string   `json:"client_id"`
	ClientSecret          string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt      int64    `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt int64    `json:"client_secret_expires_at,omitempty"`
	RedirectURIs          []string `json:"redirect_uris,omitempty"`
	AuthorizationEndpoint string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string   `json:"token_endpoint,omitempty"`
}

// OAuthTokens is the token set returned by a token endpoint.
type OAuthTokens struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// OAuthClientState is the per (user, provider) OAuth client record.
type OAuthClientState struct {
	UserID       string           `json:"user_id"`
	Provider     string           `json:"provider"`
	ClientInfo   *OAuthClientInfo `json:"client_info,omitempty"`
	Tokens       *OAuthTokens     `json:"tokens,omitempty"`
	CodeVerifier string           `json:"code_verifier,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Tier is the account class used for entitlements.
type Tier string

const (
	TierGuest   Tier = "guest"
	TierRegular Tier = "regular"
)

// User represents an authenticated user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Tier  Tier   `json:"tier,omitempty"`
}
