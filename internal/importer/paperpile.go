// Package importer converts exports from other reference managers into drafts.
package importer

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/matsen/plib/internal/provider"
	"github.com/matsen/plib/internal/reference"
)

// FlexibleString can unmarshal from either string or number JSON values.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleString(n.String())
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleString", string(data))
}

func (f FlexibleString) String() string {
	return string(f)
}

// PaperpileEntry is one item of a Paperpile JSON export.
type PaperpileEntry struct {
	ID        string `json:"_id"`
	Citekey   string `json:"citekey"`
	DOI       string `json:"doi"`
	ArXivID   string `json:"arxiv_id"`
	Title     string `json:"title"`
	Abstract  string `json:"abstract"`
	Journal   string `json:"journal"`
	Published struct {
		Year  FlexibleString `json:"year"`
		Month FlexibleString `json:"month"`
		Day   FlexibleString `json:"day"`
	} `json:"published"`
	Author []struct {
		First string `json:"first"`
		Last  string `json:"last"`
		ORCID string `json:"orcid"`
	} `json:"author"`
	Labels      []string `json:"labelsNamed"`
	Folders     []string `json:"foldersNamed"`
	Starred     bool     `json:"star"`
	Attachments []struct {
		ID         string `json:"_id"`
		ArticlePDF int    `json:"article_pdf"` // 1 = main PDF, 0 = supplement
		Filename   string `json:"filename"`
	} `json:"attachments"`
}

// ParsePaperpile parses a Paperpile JSON export into fresh drafts. Attachment
// filenames are resolved against attachmentsDir; with an empty attachmentsDir
// attachments are skipped. Entries that cannot be converted are reported in
// the error slice and do not stop the rest of the import.
func ParsePaperpile(data []byte, attachmentsDir string) ([]reference.Draft, []error) {
	var entries []PaperpileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, []error{fmt.Errorf("parsing Paperpile JSON: %w", err)}
	}

	var drafts []reference.Draft
	var errs []error
	for i, entry := range entries {
		d, err := entryToDraft(entry, attachmentsDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i+1, entryLabel(entry), err))
			continue
		}
		drafts = append(drafts, d)
	}
	return drafts, errs
}

func entryLabel(e PaperpileEntry) string {
	if e.Citekey != "" {
		return e.Citekey
	}
	return e.ID
}

func entryToDraft(entry PaperpileEntry, attachmentsDir string) (reference.Draft, error) {
	if strings.TrimSpace(entry.Title) == "" {
		return reference.Draft{}, fmt.Errorf("missing required field 'title'")
	}

	d := reference.NewDraft()
	d.Title = strings.TrimSpace(entry.Title)
	d.Abstract = entry.Abstract
	d.Venue = entry.Journal
	d.Flagged = entry.Starred
	d.Note = importNote(entry)

	for _, a := range entry.Author {
		d.Authors = append(d.Authors, reference.Author{First: a.First, Last: a.Last, ORCID: a.ORCID})
	}

	if y := entry.Published.Year.String(); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			return reference.Draft{}, fmt.Errorf("invalid year: %s", y)
		}
		d.Published.Year = year
		d.Published.Month = bounded(entry.Published.Month.String(), 12)
		d.Published.Day = bounded(entry.Published.Day.String(), 31)
	}

	if doi := provider.NormalizeDOI(entry.DOI); doi != "" {
		d = d.WithIdentifier(reference.KindDOI, doi)
	}
	if arxiv := provider.NormalizeArXivID(entry.ArXivID); arxiv != "" {
		d = d.WithIdentifier(reference.KindArXiv, arxiv)
	}

	for _, name := range entry.Labels {
		d = d.AddTag(name)
	}
	for _, name := range entry.Folders {
		d = d.AddFolder(name)
	}

	if attachmentsDir == "" {
		return d, nil
	}
	for _, att := range entry.Attachments {
		if att.Filename == "" {
			continue
		}
		path := filepath.Join(attachmentsDir, filepath.FromSlash(att.Filename))
		if att.ArticlePDF == 1 && d.MainPath == "" {
			d.MainPath = path
		} else {
			d = d.AddSupplement(path)
		}
	}
	return d, nil
}

// importNote keeps the Paperpile citekey so old citations can be traced.
func importNote(e PaperpileEntry) string {
	if e.Citekey == "" {
		return ""
	}
	return "paperpile: " + e.Citekey
}

// bounded parses s as an integer in [1, max], returning 0 otherwise.
func bounded(s string, max int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > max {
		return 0
	}
	return n
}
