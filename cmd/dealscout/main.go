package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/dealscout/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dealscout",
	Short: "Concurrent gg.deals price scraper",
	Long: `Looks up game titles on gg.deals with a pool of browser sessions,
picks the best-matching listing for each title and records its price.

Run "dealscout serve" for the job-control API or "dealscout scrape" for a
one-shot run over a titles file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		initLogger(cfg.Log)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(lc config.LogConfig) {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
