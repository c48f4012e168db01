package integrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/backoff"
	"github.com/haasonsaas/conductor/internal/composio"
	"github.com/haasonsaas/conductor/internal/infra"
	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/internal/storage"
	"github.com/haasonsaas/conductor/pkg/models"
)

// Backend is the part of the capability backend the manager needs.
type Backend interface {
	ListConnectedAccounts(ctx context.Context, userID string) ([]composio.ConnectedAccount, error)
	InitiateConnection(ctx context.Context, userID, authConfigID, callbackURL string) (*composio.ConnectionRequest, error)
}

// Store persists connections and auth requests.
type Store interface {
	storage.ConnectionStore
	storage.AuthRequestStore
}

// Config tunes the manager.
type Config struct {
	// CallbackURL is where the backend sends the browser after authorization.
	CallbackURL string
	// AuthRequestTTL is how long an auth request is reused. Defaults to 10m.
	AuthRequestTTL time.Duration
	// PollInterval and PollAttempts bound WaitForConnection. Defaults 1s x 30.
	PollInterval time.Duration
	PollAttempts int
	// ListConcurrency bounds backend calls made by List. Defaults to 4.
	ListConcurrency int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// ConnectionStatus is the resolved state of one (user, integration) pair.
type ConnectionStatus struct {
	Integration  string `json:"integration"`
	Connected    bool   `json:"connected"`
	ConnectionID string `json:"connectionId,omitempty"`
	Error        string `json:"error,omitempty"`
}

// IntegrationStatus is a catalog entry annotated for one user.
type IntegrationStatus struct {
	models.Integration
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// Manager is the connection lifecycle manager. Persisted connection
// records are authoritative. Connected observations are memoized in memory
// until ClearCache; a pair with no record is re-checked against the backend
// on every status query.
type Manager struct {
	catalog *Catalog
	backend Backend
	store   Store
	config  Config
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	initiations infra.Group[string, *models.AuthRequest]

	mu    sync.RWMutex
	cache map[string]map[string]ConnectionStatus
}

// NewManager creates a manager.
func NewManager(catalog *Catalog, backend Backend, store Store, config Config) *Manager {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	if config.AuthRequestTTL <= 0 {
		config.AuthRequestTTL = 10 * time.Minute
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.PollAttempts <= 0 {
		config.PollAttempts = 30
	}
	if config.ListConcurrency <= 0 {
		config.ListConcurrency = 4
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		catalog: catalog,
		backend: backend,
		store:   store,
		config:  config,
		logger:  logger.With("component", "integrations"),
		metrics: config.Metrics,
		now:     time.Now,
		cache:   make(map[string]map[string]ConnectionStatus),
	}
}

// Catalog returns the manager's catalog.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Status resolves whether the user has connected the integration.
func (m *Manager) Status(ctx context.Context, userID, name string) (*ConnectionStatus, error) {
	integration, ok := m.catalog.Lookup(name)
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, "integrations", "integration %s not found", name)
	}
	return m.status(ctx, userID, integration, true)
}

func (m *Manager) status(ctx context.Context, userID string, integration models.Integration, useCache bool) (*ConnectionStatus, error) {
	if useCache {
		if cached, ok := m.cached(userID, integration.Name); ok {
			return &cached, nil
		}
	}

	record, err := m.store.GetConnection(ctx, userID, integration.Name)
	switch {
	case err == nil:
		status := ConnectionStatus{
			Integration:  integration.Name,
			Connected:    record.Connected,
			ConnectionID: record.ConnectionID,
		}
		if status.Connected {
			m.setCached(userID, status)
		}
		return &status, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("load connection: %w", err)
	}

	if m.backend == nil {
		return nil, apperr.New(apperr.KindNotConfigured, "integrations", "capability backend is not configured")
	}

	accounts, err := m.backend.ListConnectedAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connected accounts: %w", err)
	}

	var relevant []composio.ConnectedAccount
	for _, account := range accounts {
		if matches(integration, account.Toolkit.Slug, account.AuthConfig.ID) {
			relevant = append(relevant, account)
		}
	}
	m.logger.Debug("resolved connections from backend",
		"user_id", userID,
		"integration", integration.Name,
		"matches", len(relevant))

	status := ConnectionStatus{Integration: integration.Name}
	if len(relevant) > 0 {
		sort.SliceStable(relevant, func(i, j int) bool {
			return relevant[i].CreatedAt.After(relevant[j].CreatedAt)
		})
		latest := relevant[0]
		ids := make([]string, len(relevant))
		for i, account := range relevant {
			ids[i] = account.ID
		}
		record := &models.IntegrationConnection{
			UserID:       userID,
			Integration:  integration.Name,
			Connected:    true,
			ConnectionID: latest.ID,
			Metadata: map[string]any{
				"toolkit":           latest.Toolkit.Slug,
				"status":            latest.Status,
				"total_connections": len(relevant),
				"connection_ids":    ids,
			},
			UpdatedAt: m.now(),
		}
		if err := m.store.UpsertConnection(ctx, record); err != nil {
			return nil, fmt.Errorf("save connection: %w", err)
		}
		status.Connected = true
		status.ConnectionID = latest.ID
		m.setCached(userID, status)
	}
	return &status, nil
}

// InitiateAuth starts authorization for the integration, or returns the
// live request already started for the same user and integration.
func (m *Manager) InitiateAuth(ctx context.Context, userID, name string) (*models.AuthRequest, error) {
	integration, ok := m.catalog.Lookup(name)
	if !ok || integration.AuthConfigID == "" {
		m.metrics.RecordAuthRequest(name, "error")
		return nil, apperr.Errorf(apperr.KindNotConfigured, "integrations", "integration %s not found or not configured", name)
	}

	m.ClearCache(userID, integration.Name)
	req, err, _ := m.initiations.Do(userID+"\x00"+integration.Name, func() (*models.AuthRequest, error) {
		return m.initiateAuth(ctx, userID, integration)
	})
	return req, err
}

func (m *Manager) initiateAuth(ctx context.Context, userID string, integration models.Integration) (*models.AuthRequest, error) {
	now := m.now()
	existing, err := m.store.GetAuthRequest(ctx, userID, integration.Name)
	switch {
	case err == nil && !existing.Expired(now):
		m.metrics.RecordAuthRequest(integration.Name, "reused")
		return existing, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("load auth request: %w", err)
	}

	if m.backend == nil {
		m.metrics.RecordAuthRequest(integration.Name, "error")
		return nil, apperr.New(apperr.KindNotConfigured, "integrations", "capability backend is not configured")
	}
	conn, err := m.backend.InitiateConnection(ctx, userID, integration.AuthConfigID, m.config.CallbackURL)
	if err != nil {
		m.metrics.RecordAuthRequest(integration.Name, "error")
		m.logger.Error("failed to initiate authorization",
			"user_id", userID,
			"integration", integration.Name,
			"error", err)
		return nil, apperr.Wrap(apperr.KindAuthInitiationFailed, "integrations", err,
			fmt.Sprintf("Failed to initiate authentication for %s", integration.Name))
	}
	if conn.RedirectURL == "" {
		m.metrics.RecordAuthRequest(integration.Name, "error")
		return nil, apperr.New(apperr.KindNoRedirectURL, "integrations", "No redirect URL provided by the capability backend")
	}

	req := &models.AuthRequest{
		UserID:      userID,
		Integration: integration.Name,
		RequestID:   fmt.Sprintf("%s:%s:%s", userID, integration.Slug, shortuuid.New()),
		RedirectURL: conn.RedirectURL,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.config.AuthRequestTTL),
	}
	if err := m.store.UpsertAuthRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("save auth request: %w", err)
	}
	m.metrics.RecordAuthRequest(integration.Name, "created")
	m.logger.Info("authorization initiated",
		"user_id", userID,
		"integration", integration.Name,
		"request_id", req.RequestID)
	return req, nil
}

var errNotConnected = errors.New("not connected")

// WaitForConnection polls the connection status until it is connected,
// ctx is done, or PollAttempts polls have been made. On success the auth
// request is deleted.
func (m *Manager) WaitForConnection(ctx context.Context, userID, name string) (*ConnectionStatus, error) {
	integration, ok := m.catalog.Lookup(name)
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, "integrations", "integration %s not found", name)
	}

	result, err := backoff.RetryWithBackoff(ctx, backoff.ConstantPolicy(m.config.PollInterval), m.config.PollAttempts,
		func(attempt int) (*ConnectionStatus, error) {
			status, err := m.status(ctx, userID, integration, false)
			if err != nil {
				m.logger.Debug("connection poll failed", "integration", integration.Name, "attempt", attempt, "error", err)
				return nil, errNotConnected
			}
			if !status.Connected {
				return nil, errNotConnected
			}
			return status, nil
		})
	if errors.Is(err, backoff.ErrMaxAttemptsExhausted) {
		return nil, apperr.Errorf(apperr.KindConnectionTimeout, "integrations", "Connection timeout for %s", integration.Name)
	}
	if err != nil {
		return nil, err
	}

	if err := m.store.DeleteAuthRequest(ctx, userID, integration.Name); err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.logger.Warn("failed to delete auth request", "integration", integration.Name, "error", err)
	}
	return result.Value, nil
}

// ClearCache forgets memoized connected observations for the user. An
// empty integration clears every integration. Persisted records are
// untouched.
func (m *Manager) ClearCache(userID, integration string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if integration == "" {
		delete(m.cache, userID)
		return
	}
	if entry, ok := m.catalog.Lookup(integration); ok {
		integration = entry.Name
	}
	delete(m.cache[userID], integration)
}

// List returns the catalog annotated with the user's connection state.
// Per-integration failures are reported in Error rather than failing the
// whole listing.
func (m *Manager) List(ctx context.Context, userID string) ([]IntegrationStatus, error) {
	entries := m.catalog.All()
	out := make([]IntegrationStatus, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.ListConcurrency)
	for i, entry := range entries {
		g.Go(func() error {
			out[i] = IntegrationStatus{Integration: entry}
			status, err := m.status(gctx, userID, entry, true)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				out[i].Error = err.Error()
				return nil
			}
			out[i].Connected = status.Connected
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// PurgeExpired deletes auth requests that expired at or before now.
func (m *Manager) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	return m.store.DeleteExpiredAuthRequests(ctx, now)
}

func (m *Manager) cached(userID, integration string) (ConnectionStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.cache[userID][integration]
	return status, ok
}

func (m *Manager) setCached(userID string, status ConnectionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache[userID] == nil {
		m.cache[userID] = make(map[string]ConnectionStatus)
	}
	m.cache[userID][status.Integration] = status
}
