package main

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/export"
	"github.com/matsen/plib/internal/importer"
	"github.com/matsen/plib/internal/ingest"
	"github.com/matsen/plib/internal/reference"
	"github.com/matsen/plib/internal/storage"
)

var (
	exportOutput string
	exportFormat string

	importFormat      string
	importAttachments string
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")
	exportCmd.Flags().StringVar(&exportFormat, "format", "jsonl", "Output format: jsonl or bibtex")
	importCmd.Flags().StringVar(&importFormat, "format", "jsonl", "Input format: jsonl or paperpile")
	importCmd.Flags().StringVar(&importAttachments, "attachments", "", "Directory holding Paperpile attachment files")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every paper as JSONL or BibTeX",
	Long: `Write every paper record as one JSON object per line (the default), or as
BibTeX entries with --format bibtex. JSONL output can be versioned with git
and loaded into another library with 'plib import'.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

// ExportResult is the response for export to a file.
type ExportResult struct {
	Status string `json:"status"`
	Path   string `json:"path"`
	Count  int    `json:"count"`
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "jsonl" && exportFormat != "bibtex" {
		exitWithError(ExitError, "unknown format %q (valid: jsonl, bibtex)", exportFormat)
	}
	a := mustOpenApp()
	defer a.Close()

	out := os.Stdout
	var err error
	if exportOutput != "" {
		if out, err = os.Create(exportOutput); err != nil {
			exitWithError(ExitError, "creating %s: %v", exportOutput, err)
		}
	}
	w := bufio.NewWriter(out)
	n, err := writeExport(cmd.Context(), a, w)
	if err == nil {
		err = w.Flush()
	}
	if exportOutput == "" {
		if err != nil {
			exitWithError(ExitError, "exporting: %v", err)
		}
		return nil
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		exitWithError(ExitError, "exporting: %v", err)
	}

	if humanOutput {
		outputHuman("Exported %d papers to %s\n", n, exportOutput)
	} else {
		outputJSON(ExportResult{Status: "exported", Path: exportOutput, Count: n})
	}
	return nil
}

func writeExport(ctx context.Context, a *app, w io.Writer) (int, error) {
	if exportFormat == "jsonl" {
		return a.store.Export(ctx, w)
	}
	papers, err := a.store.Query(ctx, storage.Filter{})
	if err != nil {
		return 0, err
	}
	return len(papers), export.WriteBibTeX(w, papers)
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import paper records from JSONL or a Paperpile export",
	Long: `Import records written by 'plib export' (the default), or a Paperpile JSON
export with --format paperpile.

JSONL records keep their ids, so importing into the same library updates them
in place. Paperpile entries get fresh ids; pass --attachments with the
directory the export's PDFs were unpacked into to copy them into the library.
No metadata source runs; use 'plib rescrape' afterwards to fill gaps.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	var drafts []reference.Draft
	var parseErrs []error
	switch importFormat {
	case "jsonl":
		var err error
		if drafts, err = storage.ReadJSONL(args[0]); err != nil {
			exitWithError(ExitDataError, "reading %s: %v", args[0], err)
		}
	case "paperpile":
		data, err := os.ReadFile(args[0])
		if err != nil {
			exitWithError(ExitDataError, "reading %s: %v", args[0], err)
		}
		drafts, parseErrs = importer.ParsePaperpile(data, config.ExpandPath(importAttachments))
		if len(drafts) == 0 && len(parseErrs) > 0 {
			exitWithError(ExitDataError, "parsing %s: %v", args[0], parseErrs[0])
		}
	default:
		exitWithError(ExitError, "unknown format %q (valid: jsonl, paperpile)", importFormat)
	}

	a := mustOpenApp()
	defer a.Close()

	sum := a.coord.Update(cmd.Context(), drafts).WithFailures(args[0], ingest.StageParse, parseErrs)
	a.Close()
	outputSummary("Imported", sum)
	return nil
}
