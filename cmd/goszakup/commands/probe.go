package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/user/goszakup-scraper/internal/domain"
	"github.com/user/goszakup-scraper/internal/extract"
	"github.com/user/goszakup-scraper/internal/fetch"
)

func init() {
	rootCmd.AddCommand(probeCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe URL",
	Short: "Fetch one announcement and print its first parsed lot without persisting anything.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		announceURL := args[0]
		announceID := extract.ExtractAnnounceID(announceURL)
		if announceID == "" {
			return fmt.Errorf("could not extract an announce id from %s", announceURL)
		}

		ctx := cmd.Context()
		client := fetch.NewClient(cfg, logger)

		body, err := client.LotIDsPage(ctx, announceURL)
		if err != nil {
			return fmt.Errorf("fetch lots page: %w", err)
		}
		lotIDs := extract.ExtractLotIDs(body)

		fmt.Printf("announcement %s: %d lots", announceID, len(lotIDs))
		if len(lotIDs) > 0 {
			fmt.Printf(" (%s)", strings.Join(lotIDs, ", "))
		}
		fmt.Println()
		if len(lotIDs) == 0 {
			return nil
		}

		detail, err := client.LotDetail(ctx, announceID, lotIDs[0])
		if err != nil {
			return fmt.Errorf("fetch lot %s: %w", lotIDs[0], err)
		}
		fields := extract.ParseLotTable(detail)
		status, note := extract.ClassifyParse(fields)

		t := newTable()
		t.AppendHeader(table.Row{"Field", "Value"})
		for _, key := range domain.FieldKeys {
			value := "-"
			if v := fields[key]; v != nil {
				value = *v
			}
			t.AppendRow(table.Row{key, value})
		}
		t.Render()

		fmt.Printf("lot %s parse status: %s\n", lotIDs[0], status)
		if note != nil {
			fmt.Println(*note)
		}
		return nil
	},
}
