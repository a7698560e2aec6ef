package main

import (
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/reference"
)

var (
	editTitle      string
	editVenue      string
	editYear       int
	editNote       string
	editTags       []string
	editUntags     []string
	editFolders    []string
	editUnfolders  []string
	editFlag       bool
	editSupplement []string
)

func init() {
	f := editCmd.Flags()
	f.StringVar(&editTitle, "title", "", "Set the title")
	f.StringVar(&editVenue, "venue", "", "Set the venue")
	f.IntVar(&editYear, "year", 0, "Set the publication year")
	f.StringVar(&editNote, "note", "", "Set the note")
	f.StringSliceVar(&editTags, "tag", nil, "Add a tag (repeatable)")
	f.StringSliceVar(&editUntags, "untag", nil, "Remove a tag (repeatable)")
	f.StringSliceVar(&editFolders, "folder", nil, "Add to a folder (repeatable)")
	f.StringSliceVar(&editUnfolders, "unfolder", nil, "Remove from a folder (repeatable)")
	f.BoolVar(&editFlag, "flag", false, "Set or clear the flag (--flag=false)")
	f.StringSliceVar(&editSupplement, "supplement", nil, "Attach a supplementary file (repeatable)")
	rootCmd.AddCommand(editCmd)
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a paper's fields, tags, folders, or files",
	Long: `Edit a stored paper. No metadata source runs; the record is relocated (a
title change renames its files) and committed.

Examples:
  plib edit 3f2a9c1e-... --title "Corrected Title" --year 2024
  plib edit 3f2a9c1e-... --tag ml --folder reading --flag
  plib edit 3f2a9c1e-... --supplement ~/Downloads/appendix.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func runEdit(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()
	ctx := cmd.Context()

	d := applyEdits(cmd, a.mustGet(ctx, args[0]))

	sum := a.coord.Update(ctx, []reference.Draft{d})
	if sum.Failed > 0 {
		a.Close()
		outputSummary("Updated", sum)
	}

	updated := a.mustGet(ctx, d.ID)
	if humanOutput {
		printPaperDetail(updated)
	} else {
		outputJSON(updated)
	}
	return nil
}

// applyEdits returns d with every flag the user set applied.
func applyEdits(cmd *cobra.Command, d reference.Draft) reference.Draft {
	flags := cmd.Flags()
	d = d.Clone()

	if flags.Changed("title") {
		d.Title = editTitle
	}
	if flags.Changed("venue") {
		d.Venue = editVenue
	}
	if flags.Changed("year") {
		d.Published = reference.PublicationDate{Year: editYear}
	}
	if flags.Changed("note") {
		d.Note = editNote
	}
	if flags.Changed("flag") {
		d.Flagged = editFlag
	}

	for _, t := range editTags {
		d = d.AddTag(t)
	}
	d.Tags = slices.DeleteFunc(d.Tags, func(t string) bool { return slices.Contains(editUntags, t) })
	for _, f := range editFolders {
		d = d.AddFolder(f)
	}
	d.Folders = slices.DeleteFunc(d.Folders, func(f string) bool { return slices.Contains(editUnfolders, f) })
	for _, p := range editSupplement {
		// Relative paths are taken from the working directory, not the library.
		abs, err := filepath.Abs(config.ExpandPath(p))
		if err != nil {
			exitWithError(ExitError, "resolving %s: %v", p, err)
		}
		d = d.AddSupplement(abs)
	}
	return d
}
