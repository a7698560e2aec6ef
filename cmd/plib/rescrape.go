package main

import (
	"github.com/spf13/cobra"
)

var (
	rescrapeExclude   []string
	rescrapePreprints bool
)

func init() {
	rescrapeCmd.Flags().StringSliceVar(&rescrapeExclude, "exclude", nil, "Source names to skip (repeatable or comma-separated)")
	rescrapeCmd.Flags().BoolVar(&rescrapePreprints, "preprints", false, "Rescrape every paper with an empty or preprint venue")
	rootCmd.AddCommand(rescrapeCmd)
	rootCmd.AddCommand(scrapeFromCmd)
}

var rescrapeCmd = &cobra.Command{
	Use:   "rescrape [id...]",
	Short: "Re-resolve metadata for stored papers",
	Long: `Run stored papers through every enabled metadata source again.

Examples:
  plib rescrape 3f2a9c1e-...
  plib rescrape 3f2a9c1e-... --exclude semanticscholar
  plib rescrape --preprints`,
	RunE: runRescrape,
}

func runRescrape(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !rescrapePreprints {
		exitWithError(ExitError, "give paper ids or --preprints")
	}
	a := mustOpenApp()
	defer a.Close()

	if rescrapePreprints {
		sum, err := a.coord.RescrapePreprints(cmd.Context())
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		a.Close()
		outputSummary("Rescraped", sum)
		return nil
	}

	sum := a.coord.Rescrape(cmd.Context(), args, rescrapeExclude...)
	a.Close()
	outputSummary("Rescraped", sum)
	return nil
}

var scrapeFromCmd = &cobra.Command{
	Use:   "scrape-from <source> <id>...",
	Short: "Run a single metadata source, even if it is disabled",
	Long: `Run exactly one metadata source over stored papers. The source runs even
when it is disabled in the configuration, and empty values may overwrite
fields whose merge policy is allow-empty.

Example:
  plib scrape-from openreview 3f2a9c1e-...`,
	Args: cobra.MinimumNArgs(2),
	RunE: runScrapeFrom,
}

func runScrapeFrom(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	source := args[0]
	if len(a.registry.Lookup(source)) == 0 {
		exitWithError(ExitDataError, "unknown source %q (configured: %v)", source, a.registry.Names())
	}

	sum := a.coord.RescrapeFrom(cmd.Context(), args[1:], source)
	a.Close()
	outputSummary("Scraped", sum)
	return nil
}
