// Package main provides the CLI entry point for the conductor chat backend.
//
// Conductor runs conversation turns against an LLM provider, dispatches the
// model's tool calls to third-party integrations and streams the results to
// the browser.
//
// # Basic Usage
//
// Start the server:
//
//	conductor serve --config conductor.yaml
//
// Manage database migrations:
//
//	conductor migrate up
//	conductor migrate status
//
// # Environment Variables
//
// A .env file in the working directory is loaded before configuration.
// Configuration values may reference the environment with ${VAR}:
//
//   - CONDUCTOR_CONFIG: Path to configuration file (default: conductor.yaml)
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY: provider credentials
//   - COMPOSIO_API_KEY: capability backend credential
//   - COMPOSIO_<INTEGRATION>_AUTH_CONFIG_ID: per-integration auth configuration
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "conductor.yaml"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conductor",
		Short: "Conductor - tool-using chat backend",
		Long: `Conductor runs chat turns against OpenAI or Anthropic models, lets the
model call third-party integrations (Gmail, Slack, GitHub and more) and
streams the turn to the client as server-sent events.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

// resolveConfigPath prefers an explicit flag, then CONDUCTOR_CONFIG, then
// the default file name.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" && path != defaultConfigPath {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("CONDUCTOR_CONFIG")); env != "" {
		return env
	}
	return defaultConfigPath
}
