// Package composio is a minimal client for the external capability backend
// that holds users' third-party connections and executes actions against
// them.
package composio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/conductor/internal/backoff"
	"github.com/haasonsaas/conductor/internal/observability"
)

const (
	DefaultBaseURL          = "https://backend.composio.dev/api/v3"
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = int64(4 << 20)
	defaultMaxRetries       = 3
)

// ErrMissingAPIKey is returned when the client is used without credentials.
var ErrMissingAPIKey = errors.New("COMPOSIO_API_KEY environment variable is required")

// Config configures the backend client.
type Config struct {
	APIKey           string
	BaseURL          string
	Timeout          time.Duration
	MaxRetries       int
	MaxResponseBytes int64
	HTTPClient       *http.Client
	Tracer           *observability.Tracer
}

// Client calls the backend REST API.
type Client struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxBytes   int64
	maxRetries int
	policy     backoff.BackoffPolicy
	tracer     *observability.Tracer
}

// NewClient creates a backend client.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("composio: invalid base_url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		client:     client,
		maxBytes:   maxBytes,
		maxRetries: maxRetries,
		policy:     backoff.DefaultPolicy(),
		tracer:     cfg.Tracer,
	}, nil
}

// ConnectedAccount is one of a user's connections to a toolkit.
type ConnectedAccount struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	Toolkit    ToolkitRef      `json:"toolkit"`
	AuthConfig AuthConfigRef   `json:"auth_config"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ToolkitRef identifies a toolkit.
type ToolkitRef struct {
	Slug string `json:"slug"`
}

// AuthConfigRef identifies an auth configuration.
type AuthConfigRef struct {
	ID string `json:"id"`
}

// ConnectionRequest is the backend's answer to starting an authorization.
type ConnectionRequest struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url"`
}

// ActionResult is the outcome of executing an action.
type ActionResult struct {
	Successful bool            `json:"successful"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	LogID      string          `json:"log_id,omitempty"`
}

// ToolInfo describes an action exposed by a toolkit.
type ToolInfo struct {
	Slug            string          `json:"slug"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Toolkit         ToolkitRef      `json:"toolkit"`
	InputParameters json.RawMessage `json:"input_parameters,omitempty"`
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("composio: status %d: %s", e.Status, e.Message)
}

// Retryable reports whether the request may succeed when repeated.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// ListConnectedAccounts returns every connection the user has, across pages.
func (c *Client) ListConnectedAccounts(ctx context.Context, userID string) ([]ConnectedAccount, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("composio: user id is required")
	}
	var accounts []ConnectedAccount
	cursor := ""
	for {
		query := url.Values{}
		query.Set("user_ids", userID)
		query.Set("limit", "100")
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		var page struct {
			Items      []ConnectedAccount `json:"items"`
			NextCursor string             `json:"next_cursor"`
		}
		if err := c.call(ctx, "list_connected_accounts", http.MethodGet, "/connected_accounts?"+query.Encode(), nil, &page); err != nil {
			return nil, err
		}
		accounts = append(accounts, page.Items...)
		if page.NextCursor == "" || len(page.Items) == 0 {
			return accounts, nil
		}
		cursor = page.NextCursor
	}
}

// InitiateConnection starts an authorization flow for the user against an
// auth configuration. Multiple connections per toolkit are allowed.
func (c *Client) InitiateConnection(ctx context.Context, userID, authConfigID, callbackURL string) (*ConnectionRequest, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(authConfigID) == "" {
		return nil, fmt.Errorf("composio: user id and auth config id are required")
	}
	body := map[string]any{
		"auth_config": map[string]any{"id": authConfigID},
		"connection": map[string]any{
			"user_id":      userID,
			"callback_url": callbackURL,
		},
		"allow_multiple": true,
	}
	var out struct {
		ConnectionRequest
		RedirectURI string `json:"redirect_uri"`
	}
	if err := c.call(ctx, "initiate_connection", http.MethodPost, "/connected_accounts", body, &out); err != nil {
		return nil, err
	}
	req := out.ConnectionRequest
	if req.RedirectURL == "" {
		req.RedirectURL = out.RedirectURI
	}
	return &req, nil
}

// ExecuteAction runs a backend action on behalf of the user.
func (c *Client) ExecuteAction(ctx context.Context, action, userID string, args json.RawMessage) (*ActionResult, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, fmt.Errorf("composio: action is required")
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	body := map[string]any{
		"user_id":   userID,
		"arguments": args,
	}
	var out ActionResult
	if err := c.call(ctx, "execute_action", http.MethodPost, "/tools/execute/"+url.PathEscape(action), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTools returns the actions a toolkit exposes.
func (c *Client) ListTools(ctx context.Context, toolkit string) ([]ToolInfo, error) {
	query := url.Values{}
	if toolkit != "" {
		query.Set("toolkit_slug", toolkit)
	}
	query.Set("limit", "200")
	var out struct {
		Items []ToolInfo `json:"items"`
	}
	if err := c.call(ctx, "list_tools", http.MethodGet, "/tools?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// call performs one traced, retried JSON request.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	if c == nil || c.client == nil {
		return ErrMissingAPIKey
	}
	var payload []byte
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("composio: encode %s: %w", op, err)
		}
		payload = encoded
	}

	ctx, span := c.tracer.TraceBackendCall(ctx, op)
	defer span.End()

	result, err := backoff.RetryWithBackoff(ctx, c.policy, c.maxRetries, func(int) ([]byte, error) {
		data, err := c.do(ctx, method, c.baseURL+path, payload)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return nil, backoff.Permanent(err)
			}
		}
		return data, err
	})
	if err != nil {
		if errors.Is(err, backoff.ErrMaxAttemptsExhausted) && result.LastError != nil {
			err = result.LastError
		}
		c.tracer.RecordError(span, err)
		return err
	}
	c.tracer.SetAttributes(span, "backend.attempts", result.Attempts)

	if out == nil || len(result.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Value, out); err != nil {
		err = fmt.Errorf("composio: decode %s response: %w", op, err)
		c.tracer.RecordError(span, err)
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("composio: create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("composio: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("composio: read response: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("composio: response too large")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}
	return data, nil
}

func errorMessage(data []byte, fallback string) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if json.Unmarshal(payload.Error, &plain) == nil && plain != "" {
			return plain
		}
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return fallback
	}
	return msg
}
