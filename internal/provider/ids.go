package provider

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/matsen/plib/internal/reference"
)

var arxivIDPattern = regexp.MustCompile(`(\d{4}\.\d{4,5}|[a-z\-]+(\.[A-Z]{2})?/\d{7})(v\d+)?$`)

// NormalizeDOI strips URL and scheme prefixes and lowercases a DOI.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi.org/", "DOI:", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return strings.ToLower(strings.TrimSpace(doi))
}

// NormalizeArXivID strips URL prefixes and the version suffix from an arXiv
// identifier. It returns "" if s does not look like one.
func NormalizeArXivID(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://arxiv.org/abs/", "http://arxiv.org/abs/", "https://arxiv.org/pdf/", "arXiv:", "arxiv:"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSuffix(s, ".pdf")
	m := arxivIDPattern.FindStringSubmatch(s)
	if m == nil || m[0] != s {
		return ""
	}
	return m[1]
}

// NormalizeTitle reduces a title to lowercase letters and digits for matching.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TitlesMatch reports whether two titles are the same after normalization.
func TitlesMatch(a, b string) bool {
	na := NormalizeTitle(a)
	return na != "" && na == NormalizeTitle(b)
}

// ParseDate parses YYYY, YYYY-MM, or YYYY-MM-DD (with any time suffix ignored).
func ParseDate(s string) reference.PublicationDate {
	var pub reference.PublicationDate
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, "-")
	if y, err := strconv.Atoi(parts[0]); err == nil {
		pub.Year = y
	}
	if len(parts) >= 2 {
		if m, err := strconv.Atoi(parts[1]); err == nil && m >= 1 && m <= 12 {
			pub.Month = m
		}
	}
	if len(parts) >= 3 {
		if d, err := strconv.Atoi(parts[2]); err == nil && d >= 1 && d <= 31 {
			pub.Day = d
		}
	}
	return pub
}

// flexString decodes a JSON value that is either a string or an array of
// strings, keeping the first element.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	if len(list) > 0 {
		*f = flexString(list[0])
	} else {
		*f = ""
	}
	return nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
