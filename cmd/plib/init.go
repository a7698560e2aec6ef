package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/storage"
)

var (
	initPapersDir string
	initLayout    string
	initReader    string
)

func init() {
	initCmd.Flags().StringVar(&initPapersDir, "papers-dir", config.DefaultPapersDir, "Directory for paper files (relative to the library or absolute)")
	initCmd.Flags().StringVar(&initLayout, "layout", config.LayoutTitle, "File naming layout: title or id")
	initCmd.Flags().StringVar(&initReader, "reader", "system", "PDF reader used by 'plib open'")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new plib library",
	Long: `Initialize a new plib library in the given or current directory.

Creates:
  .plib/
  ├── config.json     # Library config
  └── library.db      # Paper records, tags, folders, schedule state
  papers/             # Managed paper files`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}
	if len(args) == 1 {
		root = config.ExpandPath(args[0])
	}

	if config.IsLibrary(root) {
		exitWithError(ExitError, "directory already contains a plib library")
	}

	cfg := &config.Config{PapersDir: initPapersDir, Layout: initLayout, PDFReader: initReader}
	if err := cfg.Validate(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	if err := cfg.Save(root); err != nil {
		exitWithError(ExitError, "creating config.json: %v", err)
	}
	if err := os.MkdirAll(cfg.PapersPath(root), 0755); err != nil {
		exitWithError(ExitError, "creating papers directory: %v", err)
	}

	store, err := storage.Open(config.DBPath(root))
	if err != nil {
		exitWithError(ExitError, "creating database: %v", err)
	}
	store.Close()

	if humanOutput {
		outputHuman("Initialized plib library in %s\n", root)
	} else {
		outputJSON(StatusResponse{Status: "initialized", Path: root})
	}
	return nil
}
