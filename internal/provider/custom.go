package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/reference"
)

var placeholderPattern = regexp.MustCompile(`\{(title|doi|arxiv|year)\}`)

// Custom is a user-defined JSON source described entirely by configuration:
// a URL template with {title}, {doi}, {arxiv}, and {year} placeholders and a
// map from draft fields to dotted paths into the response.
type Custom struct {
	name        string
	urlTemplate string
	fields      map[string]string
}

// NewCustom creates a custom provider from its config entry.
func NewCustom(cfg config.ProviderConfig) (*Custom, error) {
	if cfg.Options.URLTemplate == "" {
		return nil, fmt.Errorf("%w: %s: custom provider needs url_template", ErrConfiguration, cfg.Name)
	}
	if len(cfg.Options.Fields) == 0 {
		return nil, fmt.Errorf("%w: %s: custom provider needs fields", ErrConfiguration, cfg.Name)
	}
	return &Custom{name: cfg.Name, urlTemplate: cfg.Options.URLTemplate, fields: cfg.Options.Fields}, nil
}

func (p *Custom) Name() string { return p.name }

// Applies is true when every placeholder in the template can be filled.
func (p *Custom) Applies(d reference.Draft) bool {
	for _, m := range placeholderPattern.FindAllStringSubmatch(p.urlTemplate, -1) {
		if placeholderValue(m[1], d) == "" {
			return false
		}
	}
	return true
}

func (p *Custom) BuildRequest(d reference.Draft) (Request, bool) {
	u := placeholderPattern.ReplaceAllStringFunc(p.urlTemplate, func(m string) string {
		return url.QueryEscape(placeholderValue(strings.Trim(m, "{}"), d))
	})
	return Request{URL: u}, true
}

func placeholderValue(name string, d reference.Draft) string {
	switch name {
	case "title":
		return strings.TrimSpace(d.Title)
	case "doi":
		return NormalizeDOI(d.Identifier(reference.KindDOI))
	case "arxiv":
		return NormalizeArXivID(d.Identifier(reference.KindArXiv))
	case "year":
		if d.Published.Year > 0 {
			return strconv.Itoa(d.Published.Year)
		}
	}
	return ""
}

func (p *Custom) Parse(resp *Response, d reference.Draft) (*reference.Patch, error) {
	var doc any
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, parseErrorf("%s: %v", p.name, err)
	}

	patch := &reference.Patch{}
	for field, path := range p.fields {
		v, ok := lookupPath(doc, path)
		if !ok {
			continue
		}
		switch field {
		case "title":
			if s, ok := firstString(v); ok {
				patch.Title = reference.String(collapseSpace(s))
			}
		case "venue":
			if s, ok := firstString(v); ok {
				patch.Venue = reference.String(collapseSpace(s))
			}
		case "abstract":
			if s, ok := firstString(v); ok {
				patch.Abstract = reference.String(s)
			}
		case "year":
			if year := toYear(v); year > 0 {
				patch.Published = &reference.PublicationDate{Year: year}
			}
		case "authors":
			if authors := toAuthors(v); authors != nil {
				patch.Authors = authors
			}
		case "doi":
			if s, ok := firstString(v); ok {
				patch.SetIdentifier(reference.KindDOI, NormalizeDOI(s))
			}
		case "arxiv":
			if s, ok := firstString(v); ok {
				patch.SetIdentifier(reference.KindArXiv, NormalizeArXivID(s))
			}
		}
	}
	return patch, nil
}

// lookupPath walks a decoded JSON document along a dotted path. Numeric
// segments index arrays.
func lookupPath(doc any, path string) (any, bool) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

func firstString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []any:
		if len(x) > 0 {
			return firstString(x[0])
		}
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	}
	return "", false
}

func toYear(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case string:
		return ParseDate(x).Year
	case []any:
		if len(x) > 0 {
			return toYear(x[0])
		}
	}
	return 0
}

// toAuthors accepts a list of names, of {"name": ...} objects, or of
// {"given": ..., "family": ...} objects.
func toAuthors(v any) []reference.Author {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	authors := make([]reference.Author, 0, len(list))
	for _, item := range list {
		switch x := item.(type) {
		case string:
			authors = append(authors, reference.ParseAuthorName(x))
		case map[string]any:
			if name, ok := x["name"].(string); ok {
				authors = append(authors, reference.ParseAuthorName(name))
				continue
			}
			family, _ := x["family"].(string)
			given, _ := x["given"].(string)
			if family != "" {
				authors = append(authors, reference.Author{First: given, Last: family})
			}
		}
	}
	return authors
}
