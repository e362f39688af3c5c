package commands

import (
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/user/goszakup-scraper/internal/domain"
)

var (
	statsDB          string
	statsDatabaseURL string
)

func init() {
	f := statsCmd.Flags()
	f.StringVar(&statsDB, "db", "", "SQLite database path (overrides DB_PATH)")
	f.StringVar(&statsDatabaseURL, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate counts from the lot and progress tables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cmd.Flags().Changed("db") {
			cfg.DBPath = statsDB
		}
		if cmd.Flags().Changed("database-url") {
			cfg.DatabaseURL = statsDatabaseURL
		}

		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Statistics(cmd.Context())
		if err != nil {
			return err
		}
		renderStatistics(stats)
		return nil
	},
}

func renderStatistics(stats *domain.Statistics) {
	t := newTable()
	t.AppendHeader(table.Row{"Metric", "Count"})
	t.AppendRow(table.Row{"lots stored", stats.TotalLots})
	t.AppendRow(table.Row{"urls tracked", stats.TotalURLs})
	t.AppendSeparator()
	for _, key := range sortedKeys(stats.LotsByParse) {
		t.AppendRow(table.Row{"lots: " + key, stats.LotsByParse[key]})
	}
	t.AppendSeparator()
	for _, key := range sortedKeys(stats.URLsByStatus) {
		t.AppendRow(table.Row{"urls: " + key, stats.URLsByStatus[key]})
	}
	t.Render()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
