package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/use-agent/mediatap/config"
)

func newConfigCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect mediatap configuration",
		Long: `Inspect mediatap configuration.

Configuration hierarchy (highest to lowest priority):
1. Environment variables (MEDIATAP_*)
2. Config file (--config)
3. Defaults`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), cfg)
		},
	}
	cmd.AddCommand(show)
	return cmd
}

// writeConfig dumps cfg as YAML with secrets masked.
func writeConfig(w io.Writer, cfg *config.Config) error {
	masked := *cfg
	if len(cfg.Auth.APIKeys) > 0 {
		masked.Auth.APIKeys = make([]string, len(cfg.Auth.APIKeys))
		for i := range masked.Auth.APIKeys {
			masked.Auth.APIKeys[i] = "********"
		}
	}
	if cfg.Broadcast.WebhookSecret != "" {
		masked.Broadcast.WebhookSecret = "********"
	}

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}
