package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/goszakup-scraper/internal/discovery"
)

var (
	discoverMaxLinks  int
	discoverStartPage int
	discoverHeadless  bool
	discoverOut       string
)

func init() {
	f := discoverCmd.Flags()
	f.IntVar(&discoverMaxLinks, "max-links", 0, "stop after collecting this many links (0 = unlimited)")
	f.IntVar(&discoverStartPage, "start-page", 1, "search results page to start from")
	f.BoolVar(&discoverHeadless, "headless", true, "run the browser headless")
	f.StringVar(&discoverOut, "out", "", "directory for the links snapshot (overrides OUTPUT_DIR)")
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover [--max-links N] [--start-page P] [--out DIR]",
	Short: "Collect announcement links from the rendered search pages into a JSON snapshot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		// Flags override the env-file values only when given.
		if cmd.Flags().Changed("max-links") {
			cfg.MaxLinks = discoverMaxLinks
		}
		if cmd.Flags().Changed("start-page") {
			cfg.StartPage = discoverStartPage
		}
		if cmd.Flags().Changed("headless") {
			cfg.Headless = discoverHeadless
		}
		if cmd.Flags().Changed("out") {
			cfg.OutputDir = discoverOut
		}

		browser := discovery.NewChromedpBrowser(cfg.Headless, cfg.PageTimeout, cfg.UserAgent)
		defer browser.Close()

		scraper := discovery.NewScraper(cfg, browser, logger)
		snap, err := scraper.Run(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("collected %d links over %d pages\n",
			snap.Metadata.TotalLinks, snap.Metadata.PagesScraped)
		fmt.Println(scraper.OutputPath())
		return nil
	},
}
