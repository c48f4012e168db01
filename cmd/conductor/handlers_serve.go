package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/conductor/internal/config"
	"github.com/haasonsaas/conductor/internal/observability"
)

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe loads configuration, wires the server and blocks until a shutdown
// signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logCfg := cfg.Observability.Logging
	if debug {
		logCfg.Level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:     logCfg.Level,
		Format:    logCfg.Format,
		Output:    os.Stderr,
		AddSource: logCfg.AddSource,
	})

	logger.Info(ctx, "starting conductor",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug)
	logger.Info(ctx, "configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"database", cfg.Database.Driver,
		"llm_provider", cfg.LLM.DefaultProvider,
		"models", cfg.LLM.AllowedModels())

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	if err := application.server.Start(ctx); err != nil {
		_ = application.shutdown.Shutdown(context.Background())
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info(ctx, "conductor started", "addr", application.server.Addr())

	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := application.shutdown.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info(context.Background(), "conductor stopped gracefully")
	return nil
}

// loadConfig reads configPath, or returns defaults when the default file
// does not exist.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == defaultConfigPath {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
