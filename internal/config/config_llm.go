package config

import (
	"sort"
	"strings"
	"time"
)

type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// Models lists selectable chat model ids. The default provider's
	// default model and the reasoning model are always selectable.
	Models []string `yaml:"models"`

	// ReasoningModel is offered no tools.
	ReasoningModel string `yaml:"reasoning_model"`

	// Aliases maps a selectable id to "provider/model", e.g.
	// chat-model: anthropic/claude-sonnet-4-20250514.
	Aliases map[string]string `yaml:"aliases"`

	// MaxSteps bounds model steps per turn.
	MaxSteps int `yaml:"max_steps"`

	// ToolTimeout bounds a single tool call. Zero disables the bound.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	MaxTokens int `yaml:"max_tokens"`

	// SystemPrompt defaults to DefaultSystemPrompt.
	SystemPrompt string `yaml:"system_prompt"`

	// GenerateTitles asks the model for a conversation title on the first
	// turn instead of truncating the first message.
	GenerateTitles bool `yaml:"generate_titles"`
}

type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

// AllowedModels returns the selectable model ids, sorted and deduplicated.
func (c LLMConfig) AllowedModels() []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range c.Models {
		add(id)
	}
	for id := range c.Aliases {
		add(id)
	}
	if p, ok := c.Providers[c.DefaultProvider]; ok {
		add(p.DefaultModel)
	}
	add(c.ReasoningModel)
	sort.Strings(out)
	return out
}

// Resolve maps a selectable id to a configured provider and the model name
// sent to it. An empty model selects the provider's default model.
func (c LLMConfig) Resolve(id string) (provider, model string) {
	target := id
	if alias := c.Aliases[id]; alias != "" {
		target = alias
	}
	if name, rest, ok := strings.Cut(target, "/"); ok {
		if _, known := c.Providers[name]; known {
			return name, rest
		}
	}
	if target == id && id == c.ReasoningModel {
		return c.DefaultProvider, ""
	}
	return c.DefaultProvider, target
}

// EntitlementsConfig holds per-tier quotas.
type EntitlementsConfig struct {
	Tiers map[string]TierEntitlement `yaml:"tiers"`
}

type TierEntitlement struct {
	MaxMessagesPerDay int `yaml:"max_messages_per_day"`
}

// RateLimitConfig configures the short-window per-user limiter.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "openai"
	}
	if cfg.ReasoningModel == "" {
		cfg.ReasoningModel = "chat-model-reasoning"
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = 15
	}
	if cfg.ToolTimeout == 0 {
		cfg.ToolTimeout = 60 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
}

func applyEntitlementDefaults(cfg *EntitlementsConfig) {
	if cfg.Tiers == nil {
		cfg.Tiers = map[string]TierEntitlement{}
	}
	if _, ok := cfg.Tiers["guest"]; !ok {
		cfg.Tiers["guest"] = TierEntitlement{MaxMessagesPerDay: 20}
	}
	if _, ok := cfg.Tiers["regular"]; !ok {
		cfg.Tiers["regular"] = TierEntitlement{MaxMessagesPerDay: 100}
	}
}

func applyRateLimitDefaults(cfg *RateLimitConfig) {
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Burst == 0 {
		cfg.Burst = 5
	}
}
