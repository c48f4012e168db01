package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/conductor/internal/config"
)

// runConfigValidate loads the configuration and lists every issue.
func runConfigValidate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load(configPath)
	if err != nil {
		var verr *config.ConfigValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(out, "%s has %d problem(s):\n", configPath, len(verr.Issues))
			for _, issue := range verr.Issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
		}
		return err
	}

	fmt.Fprintf(out, "%s is valid\n", configPath)
	fmt.Fprintf(out, "  database: %s\n", cfg.Database.Driver)
	fmt.Fprintf(out, "  default provider: %s\n", cfg.LLM.DefaultProvider)
	fmt.Fprintf(out, "  models: %v\n", cfg.LLM.AllowedModels())
	if cfg.Redis.URL == "" {
		fmt.Fprintln(out, "  streams: passthrough (not resumable)")
	} else {
		fmt.Fprintln(out, "  streams: durable")
	}
	return nil
}

// runConfigSchema prints the JSON schema of the configuration file.
func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return err
}
