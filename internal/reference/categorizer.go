package reference

import (
	"fmt"
	"strings"
)

// CategorizerKind distinguishes tags from folders. Both share the same
// reference-counted named-group model.
type CategorizerKind string

const (
	KindTag    CategorizerKind = "tag"
	KindFolder CategorizerKind = "folder"
)

// Categorizer is a named group of papers with a live-member count.
type Categorizer struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Kind  CategorizerKind `json:"kind"`
	Count int             `json:"count"`
}

// CategorizerID derives the stable identifier for a named categorizer.
func CategorizerID(kind CategorizerKind, name string) string {
	return string(kind) + "-" + strings.TrimSpace(name)
}

// ParseCategorizerKind validates a kind string.
func ParseCategorizerKind(s string) (CategorizerKind, error) {
	switch k := CategorizerKind(s); k {
	case KindTag, KindFolder:
		return k, nil
	default:
		return "", fmt.Errorf("invalid categorizer kind %q (valid: tag, folder)", s)
	}
}

// CategorizerDelta is a pending count change for one categorizer.
type CategorizerDelta struct {
	Kind  CategorizerKind
	Name  string
	Delta int
}

// CategorizerDeltas computes the count changes needed when a record moves from
// before to after. A nil before means the record is new; a nil after means it
// is being deleted.
func CategorizerDeltas(before, after *Draft) []CategorizerDelta {
	var deltas []CategorizerDelta
	var oldTags, newTags, oldFolders, newFolders []string
	if before != nil {
		oldTags, oldFolders = before.Tags, before.Folders
	}
	if after != nil {
		newTags, newFolders = after.Tags, after.Folders
	}
	deltas = append(deltas, diffNames(KindTag, oldTags, newTags)...)
	deltas = append(deltas, diffNames(KindFolder, oldFolders, newFolders)...)
	return deltas
}

func diffNames(kind CategorizerKind, before, after []string) []CategorizerDelta {
	before, after = trimmedNames(before), trimmedNames(after)
	inBefore := make(map[string]bool, len(before))
	for _, n := range before {
		inBefore[n] = true
	}
	inAfter := make(map[string]bool, len(after))
	for _, n := range after {
		inAfter[n] = true
	}

	var deltas []CategorizerDelta
	for _, n := range after {
		if !inBefore[n] {
			deltas = append(deltas, CategorizerDelta{Kind: kind, Name: n, Delta: 1})
			inBefore[n] = true
		}
	}
	for _, n := range before {
		if !inAfter[n] {
			deltas = append(deltas, CategorizerDelta{Kind: kind, Name: n, Delta: -1})
			inAfter[n] = true
		}
	}
	return deltas
}

// trimmedNames trims each name and drops empties, the same key the store
// counts under.
func trimmedNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
