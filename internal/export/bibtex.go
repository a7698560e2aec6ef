// Package export writes paper records in citation formats.
package export

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/matsen/plib/internal/reference"
)

// Entry types.
const (
	entryArticle       = "article"
	entryInproceedings = "inproceedings"
	entryMisc          = "misc"
)

// WriteBibTeX writes one entry per paper. Citation keys are unique within
// the output.
func WriteBibTeX(w io.Writer, papers []reference.Draft) error {
	keys := make(map[string]int)
	for i, d := range papers {
		key := CitationKey(d)
		if n := keys[key]; n > 0 {
			keys[key]++
			key = fmt.Sprintf("%s%c", key, 'a'+rune(n-1)%26)
		} else {
			keys[key] = 1
		}
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, ToBibTeX(d, key)); err != nil {
			return err
		}
	}
	return nil
}

// ToBibTeX renders one paper under the given citation key.
func ToBibTeX(d reference.Draft, key string) string {
	entryType := entryType(d)
	var b strings.Builder

	fmt.Fprintf(&b, "@%s{%s,\n", entryType, key)
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "  %s = {%s},\n", name, value)
		}
	}

	field("title", escapeLatex(d.Title))
	field("author", formatAuthors(d.Authors))

	switch entryType {
	case entryInproceedings:
		field("booktitle", escapeLatex(d.Venue))
	case entryArticle:
		field("journal", escapeLatex(d.Venue))
	default:
		field("howpublished", escapeLatex(d.Venue))
	}

	if d.Published.Year > 0 {
		field("year", fmt.Sprint(d.Published.Year))
	}
	if d.Published.Month > 0 {
		field("month", fmt.Sprint(d.Published.Month))
	}
	field("doi", d.Identifier(reference.KindDOI))
	if arxiv := d.Identifier(reference.KindArXiv); arxiv != "" {
		field("eprint", arxiv)
		field("archivePrefix", "arXiv")
	}
	field("url", d.Identifier(reference.KindURL))
	field("abstract", escapeLatex(d.Abstract))

	b.WriteString("}\n")
	return b.String()
}

// CitationKey builds a key like "vaswani2017attention" from the first
// author's last name, the year, and the first significant title word.
// Papers with none of those fall back to the id prefix.
func CitationKey(d reference.Draft) string {
	var b strings.Builder
	if len(d.Authors) > 0 {
		b.WriteString(keyPart(d.Authors[0].Last))
	}
	if d.Published.Year > 0 {
		fmt.Fprint(&b, d.Published.Year)
	}
	b.WriteString(keyPart(firstTitleWord(d.Title)))

	if b.Len() == 0 {
		id := d.ID
		if len(id) > 8 {
			id = id[:8]
		}
		return "paper" + id
	}
	return b.String()
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "on": true, "of": true, "in": true, "for": true, "to": true, "and": true,
}

func firstTitleWord(title string) string {
	for _, w := range strings.Fields(title) {
		if k := keyPart(w); k != "" && !stopWords[k] {
			return k
		}
	}
	return ""
}

// keyPart lowercases s and keeps only ASCII letters and digits.
func keyPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// entryType picks @misc for preprints, @inproceedings for conference venues,
// and @article otherwise.
func entryType(d reference.Draft) string {
	if d.IsPreprint() {
		return entryMisc
	}
	venue := strings.ToLower(d.Venue)
	for _, marker := range []string{"proceedings", "conference", "workshop", "symposium"} {
		if strings.Contains(venue, marker) {
			return entryInproceedings
		}
	}
	return entryArticle
}

// formatAuthors formats authors in BibTeX style: "Last, First and Last, First"
func formatAuthors(authors []reference.Author) string {
	formatted := make([]string, 0, len(authors))
	for _, a := range authors {
		if a.First != "" {
			formatted = append(formatted, escapeLatex(a.Last+", "+a.First))
		} else {
			formatted = append(formatted, escapeLatex(a.Last))
		}
	}
	return strings.Join(formatted, " and ")
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\textbackslash{}`,
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
