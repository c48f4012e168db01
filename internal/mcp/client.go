package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/oauth2"

	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/storage"
	"github.com/haasonsaas/conductor/pkg/models"
)

// Config configures the OAuth client.
type Config struct {
	// ServerURL is the protected resource, e.g. https://rube.app/mcp.
	ServerURL string
	// Provider keys the stored state, e.g. "rube".
	Provider     string
	ClientName   string
	Scope        string
	RedirectPath string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client runs the authorization code flow against the tool gateway.
type Client struct {
	config Config
	store  storage.OAuthStateStore
	http   *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewClient creates a client that persists state in store.
func NewClient(config Config, store storage.OAuthStateStore) *Client {
	if config.RedirectPath == "" {
		config.RedirectPath = "/api/mcp/oauth/callback"
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: config,
		store:  store,
		http:   httpClient,
		logger: logger.With("component", "mcp"),
		now:    time.Now,
	}
}

// Metadata is the registration metadata for a callback under origin.
func (c *Client) Metadata(origin string) ClientMetadata {
	return ClientMetadata{
		ClientName:              c.config.ClientName,
		RedirectURIs:            []string{c.redirectURL(origin)},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "client_secret_post",
		Scope:                   c.config.Scope,
	}
}

func (c *Client) redirectURL(origin string) string {
	return strings.TrimRight(origin, "/") + c.config.RedirectPath
}

func (c *Client) provider(ctx context.Context, user *models.User, origin string) (*ClientProvider, error) {
	if user == nil || user.ID == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "auth", "")
	}
	if c.config.ServerURL == "" {
		return nil, apperr.New(apperr.KindNotConfigured, "mcp", "tool gateway url is not configured")
	}
	return NewClientProvider(ctx, c.store, user.ID, c.config.Provider, c.redirectURL(origin), c.Metadata(origin))
}

// Start begins the flow for user and returns the authorization URL to
// redirect the browser to. A client is registered on first use.
func (c *Client) Start(ctx context.Context, user *models.User, origin string) (string, error) {
	p, err := c.provider(ctx, user, origin)
	if err != nil {
		return "", err
	}

	info := p.ClientInformation()
	if info == nil || info.AuthorizationEndpoint == "" || info.TokenEndpoint == "" {
		meta, err := c.discover(ctx)
		if err != nil {
			return "", err
		}
		if info == nil {
			if info, err = c.register(ctx, meta, p.ClientMetadata()); err != nil {
				return "", err
			}
		} else {
			info.AuthorizationEndpoint = meta.AuthorizationEndpoint
			info.TokenEndpoint = meta.TokenEndpoint
		}
		if err := p.SaveClientInformation(ctx, info); err != nil {
			return "", err
		}
	}

	verifier := oauth2.GenerateVerifier()
	if err := p.SaveCodeVerifier(ctx, verifier); err != nil {
		return "", err
	}

	conf := c.oauthConfig(info, p.RedirectURL())
	authURL := conf.AuthCodeURL(shortuuid.New(),
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("resource", c.config.ServerURL))

	c.logger.InfoContext(ctx, "mcp authorization started", "user_id", user.ID, "provider", c.config.Provider)
	return authURL, nil
}

// Finish exchanges code for tokens and stores them.
func (c *Client) Finish(ctx context.Context, user *models.User, code, origin string) error {
	if strings.TrimSpace(code) == "" {
		return apperr.New(apperr.KindBadRequest, "mcp", "Missing authorization code")
	}
	p, err := c.provider(ctx, user, origin)
	if err != nil {
		return err
	}
	info := p.ClientInformation()
	if info == nil || info.TokenEndpoint == "" {
		return apperr.New(apperr.KindBadRequest, "mcp", "no registered client; start the flow first")
	}
	verifier, err := p.CodeVerifier()
	if err != nil {
		return apperr.Wrap(apperr.KindBadRequest, "mcp", err, "")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	token, err := c.oauthConfig(info, p.RedirectURL()).Exchange(ctx, code,
		oauth2.VerifierOption(verifier),
		oauth2.SetAuthURLParam("resource", c.config.ServerURL))
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	tokens := &models.OAuthTokens{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    token.ExpiresIn,
	}
	if id, ok := token.Extra("id_token").(string); ok {
		tokens.IDToken = id
	}
	if scope, ok := token.Extra("scope").(string); ok {
		tokens.Scope = scope
	}
	if err := p.SaveTokens(ctx, tokens); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "mcp account linked", "user_id", user.ID, "provider", c.config.Provider)
	return nil
}

// Provider names the tool gateway the client links accounts with.
func (c *Client) Provider() string { return c.config.Provider }

// ShouldRelink loads the stored state of userID and applies ShouldRelink.
func (c *Client) ShouldRelink(ctx context.Context, userID string) (bool, error) {
	state, err := c.store.GetOAuthState(ctx, userID, c.config.Provider)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return ShouldRelink(state, c.now()), nil
}

func (c *Client) oauthConfig(info *models.OAuthClientInfo, redirectURL string) *oauth2.Config {
	var scopes []string
	if c.config.Scope != "" {
		scopes = strings.Fields(c.config.Scope)
	}
	return &oauth2.Config{
		ClientID:     info.ClientID,
		ClientSecret: info.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   info.AuthorizationEndpoint,
			TokenURL:  info.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

type serverMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	RegistrationEndpoint  string `json:"registration_endpoint"`
}

type resourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

// discover resolves the authorization server of ServerURL. It reads the
// protected resource metadata, then the authorization server metadata, and
// falls back to /authorize, /token and /register on the server origin.
func (c *Client) discover(ctx context.Context) (*serverMetadata, error) {
	server, err := url.Parse(c.config.ServerURL)
	if err != nil || server.Host == "" {
		return nil, apperr.New(apperr.KindNotConfigured, "mcp", fmt.Sprintf("invalid tool gateway url %q", c.config.ServerURL))
	}
	origin := server.Scheme + "://" + server.Host
	issuer := origin

	var resource resourceMetadata
	if err := c.getJSON(ctx, origin+"/.well-known/oauth-protected-resource"+strings.TrimRight(server.Path, "/"), &resource); err != nil {
		c.logger.DebugContext(ctx, "protected resource metadata unavailable", "error", err)
	} else if len(resource.AuthorizationServers) > 0 {
		issuer = strings.TrimRight(resource.AuthorizationServers[0], "/")
	}

	var meta serverMetadata
	if err := c.getJSON(ctx, wellKnown(issuer, "oauth-authorization-server"), &meta); err != nil {
		c.logger.DebugContext(ctx, "authorization server metadata unavailable", "issuer", issuer, "error", err)
	}
	if meta.AuthorizationEndpoint == "" {
		meta.AuthorizationEndpoint = issuer + "/authorize"
	}
	if meta.TokenEndpoint == "" {
		meta.TokenEndpoint = issuer + "/token"
	}
	if meta.RegistrationEndpoint == "" {
		meta.RegistrationEndpoint = issuer + "/register"
	}
	return &meta, nil
}

// wellKnown inserts the well-known segment between an issuer's host and path.
func wellKnown(issuer, name string) string {
	u, err := url.Parse(issuer)
	if err != nil || u.Host == "" {
		return issuer + "/.well-known/" + name
	}
	return u.Scheme + "://" + u.Host + "/.well-known/" + name + strings.TrimRight(u.Path, "/")
}

func (c *Client) register(ctx context.Context, meta *serverMetadata, metadata ClientMetadata) (*models.OAuthClientInfo, error) {
	body, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode client metadata: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, meta.RegistrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registration request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("client registration failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var info models.OAuthClientInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode registration response: %w", err)
	}
	if info.ClientID == "" {
		return nil, fmt.Errorf("client registration returned no client_id")
	}
	if len(info.RedirectURIs) == 0 {
		info.RedirectURIs = metadata.RedirectURIs
	}
	info.AuthorizationEndpoint = meta.AuthorizationEndpoint
	info.TokenEndpoint = meta.TokenEndpoint
	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out)
}
