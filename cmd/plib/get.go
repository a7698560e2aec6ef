package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a single paper by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	d := a.mustGet(cmd.Context(), args[0])
	if humanOutput {
		printPaperDetail(d)
	} else {
		outputJSON(d)
	}
	return nil
}
