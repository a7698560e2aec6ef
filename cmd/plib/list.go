package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/plib/internal/reference"
	"github.com/matsen/plib/internal/storage"
)

// DefaultSearchLimit bounds full-text search results.
const DefaultSearchLimit = 50

var (
	listPreprints bool
	listTag       string
	listFolder    string
	listFlagged   bool
	listSearch    string
	listLimit     int
)

func init() {
	f := listCmd.Flags()
	f.BoolVar(&listPreprints, "preprints", false, "Only papers with an empty or preprint venue")
	f.StringVar(&listTag, "tag", "", "Only papers with this tag")
	f.StringVar(&listFolder, "folder", "", "Only papers in this folder")
	f.BoolVar(&listFlagged, "flagged", false, "Only flagged papers")
	f.StringVar(&listSearch, "search", "", "Full-text search over title, abstract, and authors")
	f.IntVar(&listLimit, "limit", 0, "Maximum number of results (0 = all, search defaults to 50)")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List papers",
	Long: `List papers in the order they were added.

Examples:
  plib list --preprints
  plib list --tag ml --flagged
  plib list --search "protein structure"`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()
	ctx := cmd.Context()

	var papers []reference.Draft
	var err error
	if listSearch != "" {
		limit := listLimit
		if limit == 0 {
			limit = DefaultSearchLimit
		}
		papers, err = a.store.Search(ctx, listSearch, limit)
	} else {
		papers, err = a.store.Query(ctx, storage.Filter{
			Preprint: listPreprints,
			Tag:      listTag,
			Folder:   listFolder,
			Flagged:  listFlagged,
			Limit:    listLimit,
		})
	}
	if err != nil {
		exitWithError(ExitError, "listing papers: %v", err)
	}

	if humanOutput {
		if len(papers) == 0 {
			outputHuman("No papers found\n")
		}
		for _, p := range papers {
			printPaperLine(p)
		}
	} else {
		if papers == nil {
			papers = []reference.Draft{}
		}
		outputJSON(papers)
	}
	return nil
}
