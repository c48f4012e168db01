package config

import (
	"strings"
	"time"
)

type AuthConfig struct {
	JWTSecret   string         `yaml:"jwt_secret"`
	TokenExpiry time.Duration  `yaml:"token_expiry"`
	APIKeys     []APIKeyConfig `yaml:"api_keys"`
}

type APIKeyConfig struct {
	Key    string `yaml:"key"`
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
	Name   string `yaml:"name"`
	// Tier is guest or regular. Defaults to regular.
	Tier string `yaml:"tier"`
}

// ComposioConfig configures the external capability and connection backend.
type ComposioConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	// CallbackURL is where the backend redirects after authorization.
	CallbackURL string `yaml:"callback_url"`
	// AuthConfigs maps integration slug to auth configuration id. Missing
	// entries fall back to COMPOSIO_<INTEGRATION>_AUTH_CONFIG_ID.
	AuthConfigs map[string]string `yaml:"auth_configs"`

	AuthRequestTTL time.Duration `yaml:"auth_request_ttl"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	PollAttempts   int           `yaml:"poll_attempts"`
}

// AuthConfigID resolves the auth configuration id for an integration slug.
// Explicit configuration wins over the environment.
func (c ComposioConfig) AuthConfigID(integration string) string {
	if id := strings.TrimSpace(c.AuthConfigs[integration]); id != "" {
		return id
	}
	return envAuthConfigID(integration)
}

// MCPConfig configures the protocol-level OAuth client for the tool gateway.
type MCPConfig struct {
	ServerURL    string `yaml:"server_url"`
	Provider     string `yaml:"provider"`
	ClientName   string `yaml:"client_name"`
	Scope        string `yaml:"scope"`
	RedirectPath string `yaml:"redirect_path"`
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.TokenExpiry == 0 {
		cfg.TokenExpiry = 24 * time.Hour
	}
	for i := range cfg.APIKeys {
		if cfg.APIKeys[i].Tier == "" {
			cfg.APIKeys[i].Tier = "regular"
		}
	}
}

func applyComposioDefaults(cfg *ComposioConfig) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://backend.composio.dev/api/v3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.AuthRequestTTL == 0 {
		cfg.AuthRequestTTL = 10 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PollAttempts == 0 {
		cfg.PollAttempts = 30
	}
}

func applyMCPDefaults(cfg *MCPConfig) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = "https://rube.app/mcp"
	}
	if cfg.Provider == "" {
		cfg.Provider = "rube"
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "EvLab MCP Client"
	}
	if cfg.Scope == "" {
		cfg.Scope = "mcp:tools"
	}
	if cfg.RedirectPath == "" {
		cfg.RedirectPath = "/api/mcp/oauth/callback"
	}
}
