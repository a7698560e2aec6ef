// Package main provides the plib CLI entry point.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	// API keys for metadata services may live in a .env next to the library.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "plib",
	Short: "Personal paper library with automatic metadata resolution",
	Long: `plib manages a personal library of papers.

Papers are added from PDFs, URLs, DOIs, or arXiv identifiers. Metadata is
pulled from configurable sources (PDF text, arXiv, DOI, DBLP, Semantic
Scholar, OpenReview, or your own), merged in priority order, and stored in
a local SQLite database next to the files. All commands output JSON by
default; use --human for readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}
