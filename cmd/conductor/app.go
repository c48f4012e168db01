package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/agent/providers"
	"github.com/haasonsaas/conductor/internal/auth"
	"github.com/haasonsaas/conductor/internal/chat"
	"github.com/haasonsaas/conductor/internal/composio"
	"github.com/haasonsaas/conductor/internal/config"
	"github.com/haasonsaas/conductor/internal/gateway"
	"github.com/haasonsaas/conductor/internal/infra"
	"github.com/haasonsaas/conductor/internal/integrations"
	"github.com/haasonsaas/conductor/internal/mcp"
	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/internal/ratelimit"
	"github.com/haasonsaas/conductor/internal/storage"
	"github.com/haasonsaas/conductor/internal/streams"
	"github.com/haasonsaas/conductor/internal/tools"
	toolcatalog "github.com/haasonsaas/conductor/internal/tools/catalog"
	"github.com/haasonsaas/conductor/pkg/models"
)

// app holds the wired components of a running server.
type app struct {
	server   *gateway.Server
	shutdown *infra.ShutdownCoordinator
}

// newApp builds every component from cfg. On error, components created so
// far are released.
func newApp(ctx context.Context, cfg *config.Config, logger *observability.Logger) (_ *app, err error) {
	slogger := logger.Slog()
	shutdown := infra.NewShutdownCoordinator(cfg.Server.ShutdownTimeout, slogger)
	defer func() {
		if err != nil {
			_ = shutdown.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	tracing := cfg.Observability.Tracing
	tracer, stopTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    tracing.ServiceName,
		ServiceVersion: version,
		Environment:    tracing.Environment,
		Endpoint:       tracing.Endpoint,
		SamplingRate:   tracing.SamplingRate,
		Attributes:     tracing.Attributes,
		EnableInsecure: tracing.Insecure,
	})
	shutdown.Register("tracer", infra.PhaseConnections, stopTracer)

	store, err := storage.Open(ctx, storage.OpenConfig{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Migrate:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	shutdown.Register("storage", infra.PhaseConnections, func(context.Context) error { return store.Close() })

	channel := streams.Open(ctx, streams.Config{
		URL:          cfg.Redis.URL,
		TTL:          cfg.Redis.StreamTTL,
		BlockTimeout: cfg.Redis.BlockTimeout,
	}, slogger, metrics)
	shutdown.Register("streams", infra.PhaseServices, func(context.Context) error { return channel.Close() })

	llms, err := buildProviders(cfg.LLM)
	if err != nil {
		return nil, err
	}
	routes, err := buildRoutes(cfg.LLM, llms)
	if err != nil {
		return nil, err
	}

	var (
		backend     integrations.Backend
		toolBackend tools.Backend
	)
	if cfg.Composio.APIKey != "" {
		client, err := composio.NewClient(composio.Config{
			APIKey:     cfg.Composio.APIKey,
			BaseURL:    cfg.Composio.BaseURL,
			Timeout:    cfg.Composio.Timeout,
			MaxRetries: cfg.Composio.MaxRetries,
			Tracer:     tracer,
		})
		if err != nil {
			return nil, fmt.Errorf("composio client: %w", err)
		}
		backend, toolBackend = client, client
	} else {
		slogger.Warn("composio api key not configured, integration tools will report not configured")
	}

	catalog := integrations.NewCatalog(cfg.Composio.AuthConfigID)
	manager := integrations.NewManager(catalog, backend, store, integrations.Config{
		CallbackURL:    cfg.Composio.CallbackURL,
		AuthRequestTTL: cfg.Composio.AuthRequestTTL,
		PollInterval:   cfg.Composio.PollInterval,
		PollAttempts:   cfg.Composio.PollAttempts,
		Logger:         slogger,
		Metrics:        metrics,
	})

	toolRegistry := agent.NewToolRegistry()
	toolcatalog.RegisterAll(toolRegistry, toolcatalog.Deps{
		Backend:    toolBackend,
		Authorizer: manager,
		Catalog:    catalog,
		Logger:     slogger,
	})

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			Enabled:           true,
		})
	}

	orchestrator, err := chat.NewOrchestrator(chat.Deps{
		Store:    store,
		Registry: toolRegistry,
		Channel:  channel,
		Limiter:  limiter,
		Quota:    ratelimit.NewQuota(store, quotaLimits(cfg.Entitlements)),
	}, chat.Config{
		Routes:         routes,
		SystemPrompt:   cfg.LLM.SystemPrompt,
		MaxSteps:       cfg.LLM.MaxSteps,
		MaxTokens:      cfg.LLM.MaxTokens,
		ToolTimeout:    cfg.LLM.ToolTimeout,
		GenerateTitles: cfg.LLM.GenerateTitles,
		Logger:         slogger,
		Metrics:        metrics,
		Tracer:         tracer,
	})
	if err != nil {
		return nil, fmt.Errorf("chat orchestrator: %w", err)
	}

	authService := auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		APIKeys:     apiKeys(cfg.Auth.APIKeys),
	})
	if !authService.Enabled() {
		slogger.Warn("authentication disabled, every chat request will be rejected")
	}

	mcpClient := mcp.NewClient(mcp.Config{
		ServerURL:    cfg.MCP.ServerURL,
		Provider:     cfg.MCP.Provider,
		ClientName:   cfg.MCP.ClientName,
		Scope:        cfg.MCP.Scope,
		RedirectPath: cfg.MCP.RedirectPath,
		Logger:       slogger,
	}, store)

	server, err := gateway.NewServer(cfg, gateway.Deps{
		Chat:         orchestrator,
		Integrations: manager,
		Auth:         authService,
		MCP:          mcpClient,
		Streams:      channel,
		Logger:       slogger,
		Metrics:      metrics,
		Gatherer:     registry,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	shutdown.Register("http", infra.PhasePreShutdown, server.Stop)

	return &app{server: server, shutdown: shutdown}, nil
}

// buildProviders creates one client per configured provider.
func buildProviders(cfg config.LLMConfig) (map[string]agent.LLMProvider, error) {
	out := make(map[string]agent.LLMProvider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		switch name {
		case "openai":
			out[name] = providers.NewOpenAIProvider(providers.OpenAIConfig{
				APIKey:       pc.APIKey,
				BaseURL:      pc.BaseURL,
				DefaultModel: pc.DefaultModel,
			})
		case "anthropic":
			p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
				APIKey:       pc.APIKey,
				BaseURL:      pc.BaseURL,
				DefaultModel: pc.DefaultModel,
			})
			if err != nil {
				return nil, fmt.Errorf("anthropic provider: %w", err)
			}
			out[name] = p
		default:
			return nil, fmt.Errorf("unsupported llm provider %q", name)
		}
	}
	return out, nil
}

// buildRoutes maps every selectable model id to its provider. The reasoning
// model is offered no tools.
func buildRoutes(cfg config.LLMConfig, llms map[string]agent.LLMProvider) (map[string]chat.Route, error) {
	if len(llms) == 0 {
		return nil, fmt.Errorf("no llm providers configured")
	}
	ids := cfg.AllowedModels()
	sort.Strings(ids)

	routes := make(map[string]chat.Route, len(ids))
	for _, id := range ids {
		name, model := cfg.Resolve(id)
		provider, ok := llms[name]
		if !ok {
			return nil, fmt.Errorf("model %s: provider %q is not configured", id, name)
		}
		routes[id] = chat.Route{
			Provider:  provider,
			Model:     model,
			Reasoning: id == cfg.ReasoningModel,
		}
	}
	return routes, nil
}

func quotaLimits(cfg config.EntitlementsConfig) map[models.Tier]int {
	limits := make(map[models.Tier]int, len(cfg.Tiers))
	for tier, entitlement := range cfg.Tiers {
		limits[models.Tier(tier)] = entitlement.MaxMessagesPerDay
	}
	return limits
}

func apiKeys(keys []config.APIKeyConfig) []auth.APIKeyConfig {
	out := make([]auth.APIKeyConfig, 0, len(keys))
	for _, key := range keys {
		out = append(out, auth.APIKeyConfig{
			Key:    key.Key,
			UserID: key.UserID,
			Email:  key.Email,
			Name:   key.Name,
			Tier:   models.Tier(key.Tier),
		})
	}
	return out
}
