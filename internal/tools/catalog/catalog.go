// Package catalog registers every tool the assistant can call.
package catalog

import (
	"log/slog"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/integrations"
	"github.com/haasonsaas/conductor/internal/tools"
)

// Deps are the collaborators bound into each tool.
type Deps struct {
	Backend    tools.Backend
	Authorizer tools.Authorizer
	Catalog    *integrations.Catalog
	Logger     *slog.Logger
}

// RegisterAll registers the action tools and one authentication tool per
// integration. It is a no-op after the first successful call on registry.
func RegisterAll(registry *agent.ToolRegistry, deps Deps) {
	if registry.IsLoaded() {
		return
	}
	if deps.Catalog == nil {
		deps.Catalog = integrations.NewCatalog(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tools")

	for _, action := range Actions() {
		if entry, ok := deps.Catalog.Lookup(action.Integration); ok {
			action.AuthTool = integrations.AuthToolName(entry)
		}
		schema := tools.ReflectSchema(action.Input)
		registry.Register(action.Name, func(binding agent.Binding) agent.Tool {
			return tools.NewAdapter(action, schema, deps.Backend, binding, logger)
		}, action.Integration, action.BackendAction)
	}

	for _, entry := range deps.Catalog.All() {
		registry.Register(integrations.AuthToolName(entry), func(binding agent.Binding) agent.Tool {
			return tools.NewAuthAdapter(entry, deps.Authorizer, binding, logger)
		}, entry.Name, "")
	}

	if registry.MarkLoaded() {
		logger.Info("tools registered", "count", registry.Len())
	}
}
