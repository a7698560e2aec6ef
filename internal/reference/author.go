package reference

import "strings"

// Author represents a paper author.
type Author struct {
	First string `json:"first"` // First/given name(s)
	Last  string `json:"last"`  // Last/family name
}

// FullName formats the author as "First Last".
func (a Author) FullName() string {
	if a.First != "" {
		return a.First + " " + a.Last
	}
	return a.Last
}

// Common name suffixes to keep with the last name.
var nameSuffixes = map[string]bool{
	"jr":   true,
	"jr.":  true,
	"sr":   true,
	"sr.":  true,
	"ii":   true,
	"iii":  true,
	"iv":   true,
	"phd":  true,
	"ph.d": true,
	"md":   true,
}

// ParseAuthorName splits a full name into first and last name.
// Handles "Last, First" and trailing suffixes (Jr, II, PhD).
//
// Known limitations:
// - Multi-part surnames (von Neumann, van der Waals) split incorrectly
// - Middle names are included in the first name
func ParseAuthorName(name string) Author {
	name = strings.TrimSpace(name)
	if name == "" {
		return Author{}
	}

	if last, first, ok := strings.Cut(name, ","); ok {
		return Author{First: strings.TrimSpace(first), Last: strings.TrimSpace(last)}
	}

	parts := strings.Fields(name)
	if len(parts) == 1 {
		return Author{Last: parts[0]}
	}

	lastPart := strings.ToLower(parts[len(parts)-1])
	if nameSuffixes[lastPart] && len(parts) > 2 {
		return Author{
			First: strings.Join(parts[:len(parts)-2], " "),
			Last:  parts[len(parts)-2] + " " + parts[len(parts)-1],
		}
	}

	return Author{
		First: strings.Join(parts[:len(parts)-1], " "),
		Last:  parts[len(parts)-1],
	}
}

// ParseAuthorNames maps a list of full names to authors, dropping empty names.
func ParseAuthorNames(names []string) []Author {
	authors := make([]Author, 0, len(names))
	for _, n := range names {
		if a := ParseAuthorName(n); a.Last != "" {
			authors = append(authors, a)
		}
	}
	return authors
}

// FormatAuthors joins author names with ", ".
func FormatAuthors(authors []Author) string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		names = append(names, a.FullName())
	}
	return strings.Join(names, ", ")
}
