package main

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matsen/plib/internal/ingest"
	"github.com/matsen/plib/internal/storage"
)

func init() {
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(deleteSupCmd)
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete papers and their files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	sum := a.coord.Delete(cmd.Context(), args)
	a.Close()
	outputSummary("Deleted", sum)
	return nil
}

var deleteSupCmd = &cobra.Command{
	Use:   "delete-sup <id> <path|N>",
	Short: "Delete one supplementary file of a paper",
	Long: `Detach a supplementary file from a paper and delete it. The file may be
given by its stored path or by its 1-based position.

Example:
  plib delete-sup 3f2a9c1e-... 2`,
	Args: cobra.ExactArgs(2),
	RunE: runDeleteSup,
}

func runDeleteSup(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()
	ctx := cmd.Context()

	id, target := args[0], args[1]
	if n, err := strconv.Atoi(target); err == nil {
		d := a.mustGet(ctx, id)
		if n < 1 || n > len(d.SupplementPaths) {
			exitWithError(ExitDataError, "no supplement %d (have %d)", n, len(d.SupplementPaths))
		}
		target = d.SupplementPaths[n-1]
	}

	updated, err := a.coord.DeleteSupplement(ctx, id, target)
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ingest.ErrSupplementNotFound):
		exitWithError(ExitDataError, "%v", err)
	case err != nil:
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		printPaperDetail(updated)
	} else {
		outputJSON(updated)
	}
	return nil
}
