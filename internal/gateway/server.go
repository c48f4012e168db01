// Package gateway serves the HTTP API: conversation turns and their
// resumable streams, integration connections, guest sessions and the tool
// gateway OAuth flow.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/conductor/internal/auth"
	"github.com/haasonsaas/conductor/internal/chat"
	"github.com/haasonsaas/conductor/internal/config"
	"github.com/haasonsaas/conductor/internal/integrations"
	"github.com/haasonsaas/conductor/internal/mcp"
	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/internal/streams"
)

// Deps are the services the gateway exposes.
type Deps struct {
	Chat         *chat.Orchestrator
	Integrations *integrations.Manager
	Auth         *auth.Service
	// MCP is optional; its routes answer not_configured without it.
	MCP *mcp.Client
	// Streams is pruned by the janitor when it implements streams.Pruner.
	Streams streams.Channel

	Logger  *slog.Logger
	Metrics *observability.Metrics
	// Gatherer backs /metrics. Defaults to the Prometheus default gatherer.
	Gatherer prometheus.Gatherer
}

// Server is the conductor HTTP server.
type Server struct {
	config       *config.Config
	chat         *chat.Orchestrator
	integrations *integrations.Manager
	auth         *auth.Service
	mcp          *mcp.Client
	streams      streams.Channel
	logger       *slog.Logger
	metrics      *observability.Metrics
	gatherer     prometheus.Gatherer
	handler      http.Handler
	startTime    time.Time

	mu           sync.Mutex
	httpServer   *http.Server
	httpListener net.Listener
	janitor      *cron.Cron
}

// NewServer creates a server. Start must be called to accept connections.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("gateway: config is required")
	}
	if deps.Chat == nil {
		return nil, errors.New("gateway: chat orchestrator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:       cfg,
		chat:         deps.Chat,
		integrations: deps.Integrations,
		auth:         deps.Auth,
		mcp:          deps.MCP,
		streams:      deps.Streams,
		logger:       logger.With("component", "gateway"),
		metrics:      deps.Metrics,
		gatherer:     gatherer,
		startTime:    time.Now(),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler with every middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving requests and schedules the janitor.
func (s *Server) Start(ctx context.Context) error {
	if err := s.startHTTPServer(ctx); err != nil {
		return err
	}
	if err := s.startJanitor(); err != nil {
		s.stopHTTPServer(ctx)
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.stopJanitor()
	s.stopHTTPServer(ctx)
	s.logger.Info("gateway stopped", "uptime", time.Since(s.startTime).Round(time.Second).String())
	return nil
}
