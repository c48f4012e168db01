package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/integrations"
	"github.com/haasonsaas/conductor/pkg/models"
)

// Authorizer starts integration authorization.
type Authorizer interface {
	InitiateAuth(ctx context.Context, userID, integration string) (*models.AuthRequest, error)
}

// AuthAdapter is the tool that begins authorization for one integration.
type AuthAdapter struct {
	integration models.Integration
	name        string
	authorizer  Authorizer
	userID      string
	logger      *slog.Logger
}

// NewAuthAdapter binds the integration's auth tool to the user in binding.
func NewAuthAdapter(integration models.Integration, authorizer Authorizer, binding agent.Binding, logger *slog.Logger) *AuthAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthAdapter{
		integration: integration,
		name:        integrations.AuthToolName(integration),
		authorizer:  authorizer,
		userID:      bindingUserID(binding),
		logger:      logger,
	}
}

func (a *AuthAdapter) Name() string { return a.name }

func (a *AuthAdapter) Description() string {
	return fmt.Sprintf("Initiate authentication with %s to enable %s functionality", a.integration.Name, a.integration.Name)
}

func (a *AuthAdapter) Schema() json.RawMessage { return EmptyObjectSchema }

func (a *AuthAdapter) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return a.Run(ctx).ToolResult(), nil
}

// Run starts (or reuses) the authorization request.
func (a *AuthAdapter) Run(ctx context.Context) Outcome {
	if a.userID == "" {
		return Err(apperr.KindUnauthorized, "User not authenticated", "❌ **Error**\n\nUser not authenticated")
	}
	if a.authorizer == nil {
		return a.failed(apperr.New(apperr.KindNotConfigured, "integrations", "integrations are not configured"))
	}

	req, err := a.authorizer.InitiateAuth(ctx, a.userID, a.integration.Name)
	if err != nil {
		a.logger.Error("failed to initiate authentication",
			"integration", a.integration.Name,
			"error", err)
		return a.failed(err)
	}

	message := fmt.Sprintf(`🔗 **%[1]s Authentication Required**

To use %[1]s features, you need to authenticate with your %[1]s account first.

**Authentication URL:** %[2]s

Please click the authentication button below to connect your %[1]s account. After authentication, you can retry your original request.`,
		a.integration.Name, req.RedirectURL)
	return AuthRequired(req.RedirectURL, a.integration.Name, a.name, message)
}

func (a *AuthAdapter) failed(err error) Outcome {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		kind = apperr.KindAuthInitiationFailed
	}
	return Err(kind, err.Error(), fmt.Sprintf(
		"❌ **Authentication Failed**\n\nFailed to initiate %s authentication. Please try again or contact support.",
		a.integration.Name))
}
