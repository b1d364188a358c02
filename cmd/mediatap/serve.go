package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/mediatap/api"
	"github.com/use-agent/mediatap/config"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event stream and webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			// ── 1. Load configuration ───────────────────────────────────────
			cfg, err := load()
			if err != nil {
				return err
			}

			// ── 2. Initialise structured logging ────────────────────────────
			initLogger(cfg.Log, os.Stdout)
			slog.Info("mediatap starting",
				"host", cfg.Server.Host,
				"port", cfg.Server.Port,
				"mode", cfg.Server.Mode,
				"maxPages", cfg.Browser.MaxPages,
			)

			// ── 3. Pipeline (launches the browser) ──────────────────────────
			a, err := newApp(cfg, !noBrowser)
			if err != nil {
				return fmt.Errorf("initialise capture pipeline: %w", err)
			}
			defer a.Close()

			// ── 4. Router ───────────────────────────────────────────────────
			router := api.NewRouter(cfg, api.Services{
				Collector:  a.col,
				Hub:        a.hub,
				Dispatcher: a.dispatcher,
				Cache:      a.cache,
				PoolStats:  a.poolStats(),
				StartTime:  time.Now(),
			})

			// ── 5. Start HTTP server ────────────────────────────────────────
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			srv := &http.Server{
				Addr:    addr,
				Handler: router,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("HTTP server listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// ── 6. Graceful shutdown ────────────────────────────────────────
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-quit:
				slog.Info("shutdown signal received", "signal", sig.String())
			case err := <-errCh:
				return fmt.Errorf("HTTP server: %w", err)
			}

			// Streams never finish on their own; closing the hub ends them.
			a.hub.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				slog.Error("HTTP server forced shutdown", "error", err)
			} else {
				slog.Info("HTTP server drained gracefully")
			}

			// a.Close() runs via defer: drains the page pool, kills Chrome
			// and flushes the store.
			slog.Info("mediatap stopped", "captured", a.store.Count())
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "serve without launching Chromium (static engine only)")
	return cmd
}
