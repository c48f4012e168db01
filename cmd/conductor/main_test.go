package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/config"
	"github.com/haasonsaas/conductor/pkg/models"
)

type namedProvider string

func (p namedProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	ch := make(chan *agent.CompletionChunk)
	close(ch)
	return ch, nil
}
func (p namedProvider) Name() string          { return string(p) }
func (p namedProvider) Models() []agent.Model { return nil }
func (p namedProvider) SupportsTools() bool   { return true }

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"serve", "migrate", "config", "version"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestBuildRoutes(t *testing.T) {
	cfg := config.Default().LLM
	cfg.DefaultProvider = "openai"
	cfg.Providers = map[string]config.LLMProviderConfig{
		"openai":    {DefaultModel: "gpt-4o"},
		"anthropic": {DefaultModel: "claude-sonnet-4-20250514"},
	}
	cfg.Aliases = map[string]string{"chat-model": "anthropic/claude-sonnet-4-20250514"}
	llms := map[string]agent.LLMProvider{"openai": namedProvider("openai"), "anthropic": namedProvider("anthropic")}

	routes, err := buildRoutes(cfg, llms)
	if err != nil {
		t.Fatalf("buildRoutes() error = %v", err)
	}

	tests := []struct {
		id            string
		wantProvider  string
		wantModel     string
		wantReasoning bool
	}{
		{id: "chat-model", wantProvider: "anthropic", wantModel: "claude-sonnet-4-20250514"},
		{id: "chat-model-reasoning", wantProvider: "openai", wantReasoning: true},
		{id: "gpt-4o", wantProvider: "openai", wantModel: "gpt-4o"},
	}
	if len(routes) != len(tests) {
		t.Fatalf("routes = %d, want %d", len(routes), len(tests))
	}
	for _, tt := range tests {
		route, ok := routes[tt.id]
		if !ok {
			t.Fatalf("missing route %s", tt.id)
		}
		if route.Provider.Name() != tt.wantProvider || route.Model != tt.wantModel || route.Reasoning != tt.wantReasoning {
			t.Errorf("route %s = %s %q reasoning=%v", tt.id, route.Provider.Name(), route.Model, route.Reasoning)
		}
	}

	if _, err := buildRoutes(cfg, nil); err == nil {
		t.Fatal("buildRoutes() without providers should fail")
	}
}

func TestQuotaLimits(t *testing.T) {
	limits := quotaLimits(config.Default().Entitlements)
	if limits[models.TierGuest] != 20 || limits[models.TierRegular] != 100 {
		t.Fatalf("limits = %v", limits)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantErr  bool
		wantOut  string
	}{
		{name: "valid", contents: "server:\n  http_port: 8080\n", wantOut: "is valid"},
		{name: "invalid", contents: "database:\n  driver: postgres\n", wantErr: true, wantOut: "database.url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestConfig(t, tt.contents)
			out, err := execute(t, "config", "validate", "--config", path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Fatalf("output = %q", out)
			}
		})
	}
}

func TestMigrateCommandsSQLite(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, "database:\n  driver: sqlite\n  url: file:"+filepath.Join(dir, "conductor.db")+"\n")

	out, err := execute(t, "migrate", "up", "--config", path)
	if err != nil {
		t.Fatalf("migrate up error = %v", err)
	}
	if strings.Count(out, "Applied ") == 0 {
		t.Fatalf("migrate up output = %q", out)
	}

	out, err = execute(t, "migrate", "status", "--config", path)
	if err != nil {
		t.Fatalf("migrate status error = %v", err)
	}
	if !strings.Contains(out, "Pending migrations:\n  (none)") {
		t.Fatalf("status output = %q", out)
	}

	out, err = execute(t, "migrate", "down", "--config", path)
	if err != nil || !strings.Contains(out, "Rolled back ") {
		t.Fatalf("migrate down = %q, %v", out, err)
	}
}

func TestMigrateRejectsMemoryDriver(t *testing.T) {
	path := writeTestConfig(t, "database:\n  driver: memory\n")
	if _, err := execute(t, "migrate", "status", "--config", path); err == nil {
		t.Fatal("expected memory driver to be rejected")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || !strings.HasPrefix(out, "conductor "+version) {
		t.Fatalf("version = %q, %v", out, err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
