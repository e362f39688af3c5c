package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/goszakup-scraper/internal/crawler"
	"github.com/user/goszakup-scraper/internal/domain"
	"github.com/user/goszakup-scraper/internal/fetch"
	"github.com/user/goszakup-scraper/internal/monitoring"
)

var (
	scrapeInput       string
	scrapeMaxURLs     int
	scrapeNoResume    bool
	scrapeDB          string
	scrapeDatabaseURL string
	scrapeMetricsAddr string
)

func init() {
	f := scrapeCmd.Flags()
	f.StringVarP(&scrapeInput, "input", "i", "", "links JSON file produced by discover (omit to retry pending/failed URLs from the database)")
	f.IntVar(&scrapeMaxURLs, "max-urls", 0, "process at most this many URLs (0 = all)")
	f.BoolVar(&scrapeNoResume, "no-resume", false, "reprocess URLs already marked completed")
	f.StringVar(&scrapeDB, "db", "", "SQLite database path (overrides DB_PATH)")
	f.StringVar(&scrapeDatabaseURL, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	f.StringVar(&scrapeMetricsAddr, "metrics-addr", "", "listen address for /metrics and /health (overrides METRICS_ADDR)")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--input links.json]",
	Short: "Fetch and store lot details for discovered announcement URLs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cmd.Flags().Changed("db") {
			cfg.DBPath = scrapeDB
		}
		if cmd.Flags().Changed("database-url") {
			cfg.DatabaseURL = scrapeDatabaseURL
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.MetricsAddr = scrapeMetricsAddr
		}

		ctx := cmd.Context()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		var urls []string
		if scrapeInput != "" {
			if urls, err = readLinks(scrapeInput); err != nil {
				return err
			}
		} else {
			// Without an input file, the URLs the database already knows
			// as pending or failed are retried.
			if urls, err = store.ListPendingOrFailedURLs(ctx); err != nil {
				return err
			}
			if len(urls) == 0 {
				fmt.Println("nothing to do: no input file and no pending or failed URLs in the database")
				return nil
			}
			logger.Info("no input file, retrying URLs from the database",
				zap.Int("urls", len(urls)))
		}
		if scrapeMaxURLs > 0 && scrapeMaxURLs < len(urls) {
			urls = urls[:scrapeMaxURLs]
		}

		registry := prometheus.NewRegistry()
		metrics := monitoring.NewMetrics(registry)

		if cfg.MetricsAddr != "" {
			srv := monitoring.NewServer(cfg.MetricsAddr, registry, logger)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server failed", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}

		client := fetch.NewClient(cfg, logger)
		pipeline := crawler.New(cfg, store, client, metrics, logger, !scrapeNoResume)

		start := time.Now()
		stats := pipeline.Run(ctx, urls)
		elapsed := time.Since(start).Round(time.Second)

		logger.Info("run finished",
			zap.Int("urls_processed", stats.URLsProcessed),
			zap.Int("lots_found", stats.LotsFound),
			zap.Int("lots_saved", stats.LotsSaved),
			zap.Int("lots_failed", stats.LotsFailed),
			zap.Duration("elapsed", elapsed))

		// The summary is still rendered after an interrupt, so the
		// cancelled run context must not block the read.
		dbStats, err := store.Statistics(context.WithoutCancel(ctx))
		if err != nil {
			return fmt.Errorf("read statistics: %w", err)
		}
		renderStatistics(dbStats)
		return nil
	},
}

// readLinks loads announcement URLs from a discovery snapshot or any JSON
// document with a top-level links array.
func readLinks(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read links file: %w", err)
	}
	var snap domain.LinkSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse links file %s: %w", path, err)
	}
	if len(snap.Links) == 0 {
		return nil, fmt.Errorf("links file %s contains no links", path)
	}
	return snap.Links, nil
}
