package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/plib/internal/reference"
)

func init() {
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(foldersCmd)
	rootCmd.AddCommand(pruneCmd)
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List tags with their paper counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listCategorizers(cmd, reference.KindTag)
	},
}

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List folders with their paper counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listCategorizers(cmd, reference.KindFolder)
	},
}

func listCategorizers(cmd *cobra.Command, kind reference.CategorizerKind) error {
	a := mustOpenApp()
	defer a.Close()

	cats, err := a.store.ListCategorizers(cmd.Context(), kind)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		if len(cats) == 0 {
			outputHuman("No %ss\n", kind)
		}
		for _, c := range cats {
			outputHuman("%4d  %s\n", c.Count, c.Name)
		}
	} else {
		if cats == nil {
			cats = []reference.Categorizer{}
		}
		outputJSON(cats)
	}
	return nil
}

// PruneResult is the response for the prune command.
type PruneResult struct {
	Removed int `json:"removed"`
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete tags and folders that no paper uses",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func runPrune(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	n, err := a.coord.PruneCategorizers(cmd.Context())
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if humanOutput {
		outputHuman("Removed %d unused tags and folders\n", n)
	} else {
		outputJSON(PruneResult{Removed: n})
	}
	return nil
}
