package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/plib/internal/pdf"
)

var openSupplement int

func init() {
	openCmd.Flags().IntVar(&openSupplement, "supplement", 0, "Open Nth supplementary file (1-indexed)")
	rootCmd.AddCommand(openCmd)
}

var openCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Open a paper's file in the configured viewer",
	Long: `Open a paper's file in the configured viewer.

Examples:
  plib open 3f2a9c1e-...
  plib open 3f2a9c1e-... --supplement 1`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

// OpenResult is the response for the open command.
type OpenResult struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

func runOpen(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	d := a.mustGet(cmd.Context(), args[0])

	path := d.MainPath
	if openSupplement > 0 {
		idx := openSupplement - 1
		if idx >= len(d.SupplementPaths) {
			exitWithError(ExitDataError, "no supplement at index %d (have %d supplements)", openSupplement, len(d.SupplementPaths))
		}
		path = d.SupplementPaths[idx]
	}

	opener := pdf.NewOpener(a.root, a.cfg.PDFReader)
	full, err := opener.ResolvePath(path)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	if err := opener.Open(full); err != nil {
		exitWithError(ExitError, "opening file: %v", err)
	}

	if humanOutput {
		outputHuman("Opened %s\n", full)
	} else {
		outputJSON(OpenResult{Status: "opened", Path: full})
	}
	return nil
}
