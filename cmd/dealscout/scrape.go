package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/use-agent/dealscout/jobs"
	"github.com/use-agent/dealscout/models"
	"github.com/use-agent/dealscout/scrape"
)

var (
	scrapeGamesFile string
	scrapeWorkers   int
	scrapeOut       string
	scrapeProgress  string
	scrapeHeadless  bool
	scrapeDriver    string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape prices for every title in a file",
	Long: `Reads one game title per line, searches gg.deals for each and writes
the results and a progress snapshot as JSON. Ctrl-C stops after the titles in
flight and keeps everything found so far.

Examples:
  dealscout scrape --games-file games.txt --workers 3
  dealscout scrape --games-file games.txt --headless --out prices.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("headless") {
			cfg.Browser.Headless = scrapeHeadless
		}
		if scrapeDriver != "" {
			cfg.Browser.Driver = scrapeDriver
		}
		gamesFile := orDefault(scrapeGamesFile, filepath.Join(cfg.Jobs.DataDir, "games.txt"))
		out := orDefault(scrapeOut, filepath.Join(cfg.Jobs.DataDir, "results.json"))
		progress := orDefault(scrapeProgress, filepath.Join(cfg.Jobs.DataDir, "progress.json"))
		workers := scrapeWorkers
		if workers == 0 {
			workers = cfg.Worker.DefaultWorkers
		}

		games, err := loadGames(gamesFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Starting scraper (headless=%t, workers=%d, driver=%s)...\n",
			cfg.Browser.Headless, workers, cfg.Browser.Driver)

		sink := scrape.NewFileSink(out, progress)
		results, runErr := p.orchestrator("", sink).Run(ctx, games, workers)
		printSummary(cmd.OutOrStdout(), results)
		if runErr != nil {
			return runErr
		}
		slog.Info("results written", "path", out)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeGamesFile, "games-file", "", "titles file, one per line (default: <data dir>/games.txt)")
	scrapeCmd.Flags().IntVar(&scrapeWorkers, "workers", 0, "parallel browser sessions (default: DEALSCOUT_WORKERS or 3)")
	scrapeCmd.Flags().StringVar(&scrapeOut, "out", "", "results file (default: <data dir>/results.json)")
	scrapeCmd.Flags().StringVar(&scrapeProgress, "progress", "", "progress file (default: <data dir>/progress.json)")
	scrapeCmd.Flags().BoolVar(&scrapeHeadless, "headless", false, "run the browser headless")
	scrapeCmd.Flags().StringVar(&scrapeDriver, "driver", "", "session driver: rod or http (default: DEALSCOUT_DRIVER or rod)")
	rootCmd.AddCommand(scrapeCmd)
}

// loadGames reads non-blank, distinct titles from path.
func loadGames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read games file: %w", err)
	}
	games := scrape.Dedupe(jobs.SplitGames(string(data)))
	if len(games) == 0 {
		return nil, fmt.Errorf("no games in %s", path)
	}
	return games, nil
}

func printSummary(w io.Writer, results []models.Result) {
	found := 0
	for _, r := range results {
		if r.HasPrice() {
			found++
		}
	}
	fmt.Fprintf(w, "\nDone! Scraped %d games.\n", len(results))
	fmt.Fprintf(w, "Found prices for %d/%d games.\n", found, len(results))
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
