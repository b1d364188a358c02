package main

import (
	"github.com/spf13/cobra"

	"github.com/use-agent/mediatap/config"
)

const version = "0.1.0"

// newRootCmd builds the command tree. Every subcommand reads the config
// file named by --config, layered under MEDIATAP_* environment variables.
func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "mediatap",
		Short: "mediatap - capture media stream URLs from web pages",
		Long: `mediatap loads pages in a headless browser, watches every request,
response, download and DOM change for media resources (HLS/DASH manifests,
progressive video and audio files) and keeps a deduplicated list of what it
found. The list is served over an HTTP API, a server-sent event stream and
signed webhooks.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	load := func() (*config.Config, error) {
		return config.Load(cfgFile)
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newCaptureCmd(load))
	root.AddCommand(newConfigCmd(load))
	return root
}
