package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/mediatap/config"
	"github.com/use-agent/mediatap/engine"
)

// captureOutput is what the capture command prints.
type captureOutput struct {
	URL      string         `json:"url"`
	Engine   string         `json:"engine"`
	Title    string         `json:"title,omitempty"`
	Found    []engine.Found `json:"found"`
	Total    int            `json:"total"`
	Duration string         `json:"duration"`
}

func newCaptureCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		mode    string
		timeout time.Duration
		observe time.Duration
		stealth bool
	)

	cmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Capture one page and print the media URLs found as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			// Logs go to stderr so stdout stays valid JSON.
			initLogger(cfg.Log, os.Stderr)

			switch mode {
			case engine.ModeAuto, engine.ModeHTTP, engine.ModeBrowser:
			default:
				return fmt.Errorf("invalid --engine %q (want auto, http or browser)", mode)
			}

			a, err := newApp(cfg, mode != engine.ModeHTTP)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			req := &engine.Request{
				URL:      args[0],
				Timeout:  timeout,
				Observe:  observe,
				Stealth:  stealth,
				BlockAds: cfg.Capture.BlockAds,
			}
			res, err := a.dispatcher.Dispatch(cmd.Context(), req, mode)
			if errors.Is(err, engine.ErrNoMedia) {
				res, err = &engine.Result{EngineName: "http"}, nil
			}
			if err != nil {
				return err
			}

			out := captureOutput{
				URL:      args[0],
				Engine:   res.EngineName,
				Title:    res.Title,
				Found:    res.Found,
				Total:    a.store.Count(),
				Duration: time.Since(start).Round(time.Millisecond).String(),
			}
			if out.Found == nil {
				out.Found = []engine.Found{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&mode, "engine", engine.ModeAuto, "engine mode: auto, http or browser")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "capture timeout (default: capture.default_timeout)")
	cmd.Flags().DurationVar(&observe, "observe", 0, "how long to watch the loaded page (default: capture.observe_window)")
	cmd.Flags().BoolVar(&stealth, "stealth", false, "inject stealth evasions")
	return cmd
}
