package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Config is the main configuration structure for conductor.
type Config struct {
	Version       int                 `yaml:"version"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	LLM           LLMConfig           `yaml:"llm"`
	Composio      ComposioConfig      `yaml:"composio"`
	Entitlements  EntitlementsConfig  `yaml:"entitlements"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ConfigValidationError lists every problem found in a configuration.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "config invalid"
	}
	return "config invalid: " + strings.Join(e.Issues, "; ")
}

// Load reads, merges, defaults and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if cfg.Version != 0 {
		if err := ValidateVersion(cfg.Version); err != nil {
			return nil, err
		}
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied. It is used
// when no config file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyRedisDefaults(&cfg.Redis)
	applyAuthDefaults(&cfg.Auth)
	applyLLMDefaults(&cfg.LLM)
	applyComposioDefaults(&cfg.Composio)
	applyEntitlementDefaults(&cfg.Entitlements)
	applyRateLimitDefaults(&cfg.RateLimit)
	applyMCPDefaults(&cfg.MCP)
	applyObservabilityDefaults(&cfg.Observability)
}

// Validate checks cross-field constraints. Every issue names its field.
func Validate(cfg *Config) error {
	var issues []string

	if cfg.Server.HTTPPort < 0 || cfg.Server.HTTPPort > 65535 {
		issues = append(issues, fmt.Sprintf("server.http_port %d out of range", cfg.Server.HTTPPort))
	}

	switch cfg.Database.Driver {
	case "memory":
	case "postgres", "sqlite":
		if strings.TrimSpace(cfg.Database.URL) == "" {
			issues = append(issues, fmt.Sprintf("database.url is required for driver %q", cfg.Database.Driver))
		}
	default:
		issues = append(issues, fmt.Sprintf("database.driver %q must be postgres, sqlite or memory", cfg.Database.Driver))
	}

	if len(cfg.LLM.Providers) > 0 {
		if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
			issues = append(issues, fmt.Sprintf("llm.default_provider %q has no providers entry", cfg.LLM.DefaultProvider))
		}
	}
	for name := range cfg.LLM.Providers {
		if name != "openai" && name != "anthropic" {
			issues = append(issues, fmt.Sprintf("llm.providers.%s is not supported", name))
		}
	}
	for id, target := range cfg.LLM.Aliases {
		name, _, ok := strings.Cut(target, "/")
		if !ok {
			issues = append(issues, fmt.Sprintf("llm.aliases.%s must be provider/model", id))
			continue
		}
		if _, known := cfg.LLM.Providers[name]; !known {
			issues = append(issues, fmt.Sprintf("llm.aliases.%s names unknown provider %q", id, name))
		}
	}
	if cfg.LLM.MaxSteps < 1 {
		issues = append(issues, "llm.max_steps must be at least 1")
	}

	for tier, limit := range cfg.Entitlements.Tiers {
		if limit.MaxMessagesPerDay < 0 {
			issues = append(issues, fmt.Sprintf("entitlements.tiers.%s.max_messages_per_day must not be negative", tier))
		}
	}

	durations := map[string]time.Duration{
		"server.read_header_timeout": cfg.Server.ReadHeaderTimeout,
		"server.shutdown_timeout":    cfg.Server.ShutdownTimeout,
		"database.conn_max_lifetime": cfg.Database.ConnMaxLifetime,
		"redis.stream_ttl":           cfg.Redis.StreamTTL,
		"redis.block_timeout":        cfg.Redis.BlockTimeout,
		"auth.token_expiry":          cfg.Auth.TokenExpiry,
		"llm.tool_timeout":           cfg.LLM.ToolTimeout,
		"composio.timeout":           cfg.Composio.Timeout,
		"composio.poll_interval":     cfg.Composio.PollInterval,
		"composio.auth_request_ttl":  cfg.Composio.AuthRequestTTL,
	}
	for field, value := range durations {
		if value < 0 {
			issues = append(issues, fmt.Sprintf("%s must not be negative", field))
		}
	}

	if rate := cfg.Observability.Tracing.SamplingRate; rate < 0 || rate > 1 {
		issues = append(issues, "observability.tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) == 0 {
		return nil
	}
	sort.Strings(issues)
	return &ConfigValidationError{Issues: issues}
}

// envAuthConfigID reads COMPOSIO_<INTEGRATION>_AUTH_CONFIG_ID.
func envAuthConfigID(integration string) string {
	key := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(integration))
	return strings.TrimSpace(os.Getenv("COMPOSIO_" + key + "_AUTH_CONFIG_ID"))
}
