package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(addCmd)
}

var addCmd = &cobra.Command{
	Use:   "add <ref>...",
	Short: "Add papers from files, URLs, DOIs, or arXiv ids",
	Long: `Add papers to the library. Each reference may be a local file, a PDF URL,
a DOI (doi:10.1000/xyz or https://doi.org/...), or an arXiv id
(arxiv:2301.00001 or an arxiv.org link).

Metadata is resolved from every enabled source, then files are moved into the
papers directory and the records are committed. Items that fail are reported
without affecting the rest of the batch.

Examples:
  plib add ~/Downloads/paper.pdf
  plib add doi:10.1038/nature14539 arxiv:1706.03762`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	sum := a.coord.Ingest(cmd.Context(), args)
	a.Close()
	outputSummary("Added", sum)
	return nil
}
