package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/dealscout/api"
	"github.com/use-agent/dealscout/archive"
	"github.com/use-agent/dealscout/jobs"
	"github.com/use-agent/dealscout/webhook"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job-control HTTP server",
	Long: `Serves the /api routes that start, stop and inspect one scrape job per
tab. Runtime files live under DEALSCOUT_DATA_DIR and are removed on exit
unless DEALSCOUT_CLEANUP_ON_EXIT=false.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if serveHost != "" {
			cfg.Server.Host = serveHost
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		slog.Info("dealscout starting",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"mode", cfg.Server.Mode,
			"driver", cfg.Browser.Driver,
			"tabs", cfg.Jobs.Tabs,
		)

		p, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		opts := jobs.Options{
			DataDir:        cfg.Jobs.DataDir,
			Tabs:           cfg.Jobs.Tabs,
			DefaultWorkers: cfg.Worker.DefaultWorkers,
			Notifier:       webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret),
		}
		if cfg.Archive.Enabled {
			st, err := archive.Open(ctx, cfg.Archive.DSN)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer st.Close()
			opts.Archive = st
		}

		m, err := jobs.NewManager(p.runnerFactory(), opts)
		if err != nil {
			return err
		}

		router := api.NewRouter(ctx, m, cfg, time.Now())
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		case <-ctx.Done():
			slog.Info("shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}

		// Running jobs finish their current title and write a stopped snapshot.
		if err := m.Shutdown(shutdownCtx, cfg.Jobs.CleanupOnExit); err != nil {
			slog.Warn("job shutdown incomplete", "error", err)
		}

		slog.Info("dealscout stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default: DEALSCOUT_PORT or 5000)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default: DEALSCOUT_HOST or 127.0.0.1)")
	rootCmd.AddCommand(serveCmd)
}
