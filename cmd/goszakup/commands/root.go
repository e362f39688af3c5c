package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/goszakup-scraper/internal/config"
	"github.com/user/goszakup-scraper/internal/logging"
	"github.com/user/goszakup-scraper/internal/storage"
)

var (
	verbose bool
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "goszakup",
	Short: "goszakup harvests tender lot records from the goszakup.gov.kz procurement portal.",

	// Runtime failures are reported by ExecuteContext; usage help on a
	// failed scrape would only bury the actual error.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging with the development encoder")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load configuration from (default .env)")
}

// ExecuteContext runs the CLI. ctx carries the signal-driven shutdown the
// long-running subcommands honor.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger. Every
// subcommand starts here.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openStore picks the storage backend: a DATABASE_URL selects PostgreSQL,
// otherwise the single-file SQLite database at DB_PATH is used.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.DatabaseURL != "" {
		return storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	}
	return storage.NewSQLiteStore(cfg.DBPath)
}

// newTable is the shared writer behind all tabular command output.
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
