// Package reference defines the core domain types for papers in the library.
package reference

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDKind names an external identifier scheme.
type IDKind string

const (
	KindDOI        IDKind = "doi"
	KindArXiv      IDKind = "arxiv"
	KindPMID       IDKind = "pmid"
	KindPMCID      IDKind = "pmcid"
	KindS2         IDKind = "s2"
	KindDBLP       IDKind = "dblp"
	KindOpenReview IDKind = "openreview"
	KindURL        IDKind = "url"
)

// preprintPatterns are lowercase venue substrings that mark a non-peer-reviewed venue.
var preprintPatterns = []string{"rxiv", "openreview"}

// Draft is the in-flight representation of one paper during resolution and
// ingestion. Drafts are values: every operation that changes one returns the
// changed copy, so a provider can never hold a stale alias.
type Draft struct {
	// Identity
	ID string `json:"id"` // Assigned at creation, immutable

	// Metadata
	Title     string            `json:"title"`
	Authors   []Author          `json:"authors"`
	Abstract  string            `json:"abstract,omitempty"`
	Venue     string            `json:"venue"` // Journal, conference, or preprint server
	Published PublicationDate   `json:"published"`
	IDs       map[IDKind]string `json:"ids,omitempty"`

	// Organisation
	Tags    []string `json:"tags,omitempty"`
	Folders []string `json:"folders,omitempty"`
	Flagged bool     `json:"flagged"`
	Note    string   `json:"note,omitempty"`

	// File Paths (relative to the library directory once committed)
	MainPath        string   `json:"main_path,omitempty"`
	SupplementPaths []string `json:"supplement_paths,omitempty"`

	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublicationDate represents a publication date with optional month and day.
type PublicationDate struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"` // 1-12, 0 if unknown
	Day   int `json:"day,omitempty"`   // 1-31, 0 if unknown
}

// IsZero reports whether no part of the date is known.
func (p PublicationDate) IsZero() bool {
	return p.Year == 0 && p.Month == 0 && p.Day == 0
}

// NewDraft returns an empty draft with a fresh identifier.
func NewDraft() Draft {
	now := time.Now().UTC()
	return Draft{
		ID:        uuid.NewString(),
		IDs:       make(map[IDKind]string),
		AddedAt:   now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the draft.
func (d Draft) Clone() Draft {
	c := d
	c.Authors = slices.Clone(d.Authors)
	c.Tags = slices.Clone(d.Tags)
	c.Folders = slices.Clone(d.Folders)
	c.SupplementPaths = slices.Clone(d.SupplementPaths)
	if d.IDs != nil {
		c.IDs = make(map[IDKind]string, len(d.IDs))
		for k, v := range d.IDs {
			c.IDs[k] = v
		}
	}
	return c
}

// Identifier returns the external identifier of the given kind, or "".
func (d Draft) Identifier(kind IDKind) string {
	if d.IDs == nil {
		return ""
	}
	return d.IDs[kind]
}

// WithIdentifier returns a copy of the draft with the identifier set.
// An empty value removes the identifier.
func (d Draft) WithIdentifier(kind IDKind, value string) Draft {
	c := d.Clone()
	if c.IDs == nil {
		c.IDs = make(map[IDKind]string)
	}
	if value == "" {
		delete(c.IDs, kind)
	} else {
		c.IDs[kind] = value
	}
	return c
}

// IsPreprint reports whether the venue is empty or matches a known preprint
// server pattern.
func (d Draft) IsPreprint() bool {
	return IsPreprintVenue(d.Venue)
}

// IsPreprintVenue reports whether a venue string is empty or preprint-like.
func IsPreprintVenue(venue string) bool {
	v := strings.ToLower(strings.TrimSpace(venue))
	if v == "" {
		return true
	}
	for _, p := range preprintPatterns {
		if strings.Contains(v, p) {
			return true
		}
	}
	return false
}

// PreprintPatterns returns the venue substrings treated as preprint-like.
func PreprintPatterns() []string {
	return slices.Clone(preprintPatterns)
}

// AddSupplement returns a copy with path appended to the supplementary files,
// unless it is already present.
func (d Draft) AddSupplement(path string) Draft {
	if path == "" || slices.Contains(d.SupplementPaths, path) || path == d.MainPath {
		return d
	}
	c := d.Clone()
	c.SupplementPaths = append(c.SupplementPaths, path)
	return c
}

// RemoveSupplement returns a copy without the given supplementary path.
func (d Draft) RemoveSupplement(path string) Draft {
	c := d.Clone()
	c.SupplementPaths = slices.DeleteFunc(c.SupplementPaths, func(p string) bool { return p == path })
	return c
}

// AddTag returns a copy with the tag added (set semantics).
func (d Draft) AddTag(name string) Draft {
	name = strings.TrimSpace(name)
	if name == "" || slices.Contains(d.Tags, name) {
		return d
	}
	c := d.Clone()
	c.Tags = append(c.Tags, name)
	return c
}

// AddFolder returns a copy with the folder added (set semantics).
func (d Draft) AddFolder(name string) Draft {
	name = strings.TrimSpace(name)
	if name == "" || slices.Contains(d.Folders, name) {
		return d
	}
	c := d.Clone()
	c.Folders = append(c.Folders, name)
	return c
}

// Files returns the main path followed by the supplementary paths, skipping empties.
func (d Draft) Files() []string {
	var files []string
	if d.MainPath != "" {
		files = append(files, d.MainPath)
	}
	for _, p := range d.SupplementPaths {
		if p != "" {
			files = append(files, p)
		}
	}
	return files
}

// Validate checks the draft's structural invariants.
func (d Draft) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("draft has no id")
	}
	seen := make(map[string]bool, len(d.SupplementPaths))
	for _, p := range d.SupplementPaths {
		if seen[p] {
			return fmt.Errorf("draft %s: duplicate supplementary path %q", d.ID, p)
		}
		seen[p] = true
	}
	if err := checkNames(KindTag, d.Tags); err != nil {
		return fmt.Errorf("draft %s: %w", d.ID, err)
	}
	if err := checkNames(KindFolder, d.Folders); err != nil {
		return fmt.Errorf("draft %s: %w", d.ID, err)
	}
	return nil
}

// checkNames requires categorizer names to be non-empty, trimmed and unique,
// matching how the store keys their counts.
func checkNames(kind CategorizerKind, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" || strings.TrimSpace(n) != n {
			return fmt.Errorf("%s name %q is empty or has surrounding spaces", kind, n)
		}
		if seen[n] {
			return fmt.Errorf("duplicate %s %q", kind, n)
		}
		seen[n] = true
	}
	return nil
}
