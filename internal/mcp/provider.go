// Package mcp links a user's account on the remote tool gateway through the
// protocol-level OAuth flow: metadata discovery, dynamic client
// registration, PKCE authorization and token exchange.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/conductor/internal/storage"
	"github.com/haasonsaas/conductor/pkg/models"
)

// ErrNoCodeVerifier is returned when a callback arrives without a started flow.
var ErrNoCodeVerifier = errors.New("mcp: no code verifier saved")

// ClientMetadata is the dynamic registration request body.
type ClientMetadata struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	Scope                   string   `json:"scope,omitempty"`
}

// ClientProvider is the OAuth client state of one (user, provider) pair.
// Every Save writes through to the store before returning.
type ClientProvider struct {
	store       storage.OAuthStateStore
	userID      string
	provider    string
	redirectURL string
	metadata    ClientMetadata
	state       models.OAuthClientState
}

// NewClientProvider loads the stored state for (userID, provider). A missing
// record yields an empty provider.
func NewClientProvider(ctx context.Context, store storage.OAuthStateStore, userID, provider, redirectURL string, metadata ClientMetadata) (*ClientProvider, error) {
	p := &ClientProvider{
		store:       store,
		userID:      userID,
		provider:    provider,
		redirectURL: redirectURL,
		metadata:    metadata,
		state:       models.OAuthClientState{UserID: userID, Provider: provider},
	}
	state, err := store.GetOAuthState(ctx, userID, provider)
	switch {
	case err == nil:
		p.state = *state
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("load oauth state: %w", err)
	}
	return p, nil
}

func (p *ClientProvider) RedirectURL() string            { return p.redirectURL }
func (p *ClientProvider) ClientMetadata() ClientMetadata { return p.metadata }

// ClientInformation returns the registered client, or nil.
func (p *ClientProvider) ClientInformation() *models.OAuthClientInfo {
	return p.state.ClientInfo
}

func (p *ClientProvider) SaveClientInformation(ctx context.Context, info *models.OAuthClientInfo) error {
	if err := p.store.UpsertOAuthState(ctx, p.userID, p.provider, storage.OAuthStateUpdate{ClientInfo: info}); err != nil {
		return fmt.Errorf("save client information: %w", err)
	}
	p.state.ClientInfo = info
	return nil
}

// Tokens returns the stored tokens, or nil when the user is not linked.
func (p *ClientProvider) Tokens() *models.OAuthTokens {
	return p.state.Tokens
}

// SaveTokens stores tokens and clears the code verifier.
func (p *ClientProvider) SaveTokens(ctx context.Context, tokens *models.OAuthTokens) error {
	empty := ""
	if err := p.store.UpsertOAuthState(ctx, p.userID, p.provider, storage.OAuthStateUpdate{
		Tokens:       tokens,
		CodeVerifier: &empty,
	}); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	p.state.Tokens = tokens
	p.state.CodeVerifier = ""
	return nil
}

func (p *ClientProvider) SaveCodeVerifier(ctx context.Context, verifier string) error {
	if err := p.store.UpsertOAuthState(ctx, p.userID, p.provider, storage.OAuthStateUpdate{CodeVerifier: &verifier}); err != nil {
		return fmt.Errorf("save code verifier: %w", err)
	}
	p.state.CodeVerifier = verifier
	return nil
}

// CodeVerifier returns the verifier of the pending flow.
func (p *ClientProvider) CodeVerifier() (string, error) {
	if p.state.CodeVerifier == "" {
		return "", ErrNoCodeVerifier
	}
	return p.state.CodeVerifier, nil
}
