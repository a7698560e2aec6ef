package main

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/matsen/plib/internal/ingest"
	"github.com/matsen/plib/internal/reference"
)

// Title truncation lengths by context
const (
	ListTitleMaxLen   = 60
	DetailTitleMaxLen = 70
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...any) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// outputSummary prints a batch summary and exits non-zero if any item failed.
func outputSummary(verb string, sum ingest.Summary) {
	if humanOutput {
		for _, item := range sum.Items {
			if item.OK() {
				outputHuman("%-8s %s\n", "ok", item.Ref)
			} else {
				outputHuman("%-8s %s (%s: %s)\n", "failed", item.Ref, item.Stage, item.Error)
			}
		}
		outputHuman("%s %d of %d\n", verb, sum.Succeeded, sum.Total)
	} else {
		outputJSON(sum)
	}
	if sum.Failed > 0 {
		os.Exit(ExitPartial)
	}
}

// printPaperLine prints one paper in list form.
func printPaperLine(d reference.Draft) {
	year := ""
	if d.Published.Year > 0 {
		year = fmt.Sprintf(" (%d)", d.Published.Year)
	}
	flag := " "
	if d.Flagged {
		flag = "*"
	}
	title := d.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("%s %s  %s%s\n", flag, shortID(d.ID), truncateString(title, ListTitleMaxLen), year)
	if len(d.Authors) > 0 || d.Venue != "" {
		fmt.Printf("           %s  %s\n", formatAuthorsShort(d.Authors, 3), d.Venue)
	}
}

// printPaperDetail prints every field of a paper.
func printPaperDetail(d reference.Draft) {
	fmt.Println(d.ID)
	fmt.Println(strings.Repeat("═", DetailTitleMaxLen))
	fmt.Printf("Title:    %s\n", d.Title)
	if len(d.Authors) > 0 {
		fmt.Printf("Authors:  %s\n", reference.FormatAuthors(d.Authors))
	}
	if d.Venue != "" {
		fmt.Printf("Venue:    %s\n", d.Venue)
	}
	if !d.Published.IsZero() {
		fmt.Printf("Date:     %s\n", formatDate(d.Published))
	}
	for _, kind := range sortedKinds(d.IDs) {
		fmt.Printf("%-9s %s\n", string(kind)+":", d.IDs[kind])
	}
	if len(d.Tags) > 0 {
		fmt.Printf("Tags:     %s\n", strings.Join(d.Tags, ", "))
	}
	if len(d.Folders) > 0 {
		fmt.Printf("Folders:  %s\n", strings.Join(d.Folders, ", "))
	}
	if d.Flagged {
		fmt.Println("Flagged:  yes")
	}
	if d.MainPath != "" {
		fmt.Printf("File:     %s\n", d.MainPath)
	}
	for i, p := range d.SupplementPaths {
		fmt.Printf("Supp %d:   %s\n", i+1, p)
	}
	if d.Note != "" {
		fmt.Printf("\nNote:\n  %s\n", d.Note)
	}
	if d.Abstract != "" {
		fmt.Printf("\nAbstract:\n  %s\n", d.Abstract)
	}
}

func formatDate(p reference.PublicationDate) string {
	switch {
	case p.Day > 0:
		return fmt.Sprintf("%04d-%02d-%02d", p.Year, p.Month, p.Day)
	case p.Month > 0:
		return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	default:
		return fmt.Sprintf("%04d", p.Year)
	}
}

func sortedKinds(ids map[reference.IDKind]string) []reference.IDKind {
	kinds := make([]reference.IDKind, 0, len(ids))
	for k := range ids {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// formatAuthorsShort formats authors as "Last1, Last2, Last3 et al."
func formatAuthorsShort(authors []reference.Author, maxAuthors int) string {
	if len(authors) == 0 {
		return ""
	}
	var names []string
	for i, a := range authors {
		if i >= maxAuthors {
			break
		}
		names = append(names, a.Last)
	}
	result := strings.Join(names, ", ")
	if len(authors) > maxAuthors {
		result += " et al."
	}
	return result
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
