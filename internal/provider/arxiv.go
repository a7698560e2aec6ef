package provider

import (
	"encoding/xml"
	"net/url"
	"strings"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/reference"
)

// ArXivBaseURL is the arXiv export API.
const ArXivBaseURL = "https://export.arxiv.org"

// ArXiv fetches the Atom entry for preprints with an arXiv identifier.
type ArXiv struct {
	BaseURL string
}

// NewArXiv creates an arXiv provider.
func NewArXiv(baseURL string) *ArXiv {
	if baseURL == "" {
		baseURL = ArXivBaseURL
	}
	return &ArXiv{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (p *ArXiv) Name() string { return config.ProviderArXiv }

func (p *ArXiv) Applies(d reference.Draft) bool {
	return d.IsPreprint() && d.Identifier(reference.KindArXiv) != ""
}

func (p *ArXiv) BuildRequest(d reference.Draft) (Request, bool) {
	id := NormalizeArXivID(d.Identifier(reference.KindArXiv))
	if id == "" {
		return Request{}, false
	}
	return Request{
		URL:       p.BaseURL + "/api/query?id_list=" + url.QueryEscape(id),
		RateLimit: 1, // arXiv asks for no more than one request every few seconds
	}, true
}

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string        `xml:"id"`
	Title      string        `xml:"title"`
	Summary    string        `xml:"summary"`
	Published  string        `xml:"published"`
	Authors    []arxivAuthor `xml:"author"`
	DOI        string        `xml:"http://arxiv.org/schemas/atom doi"`
	JournalRef string        `xml:"http://arxiv.org/schemas/atom journal_ref"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

func (p *ArXiv) Parse(resp *Response, d reference.Draft) (*reference.Patch, error) {
	var feed arxivFeed
	if err := xml.Unmarshal(resp.Body, &feed); err != nil {
		return nil, parseErrorf("arxiv: %v", err)
	}
	if len(feed.Entries) == 0 {
		return nil, parseErrorf("arxiv: feed has no entries")
	}
	entry := feed.Entries[0]
	title := collapseSpace(entry.Title)
	// The API answers unknown ids with a single "Error" entry.
	if title == "" || title == "Error" {
		return nil, parseErrorf("arxiv: no entry for %s", d.Identifier(reference.KindArXiv))
	}

	names := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		names = append(names, a.Name)
	}

	patch := &reference.Patch{
		Title:    reference.String(title),
		Abstract: reference.String(collapseSpace(entry.Summary)),
		Authors:  reference.ParseAuthorNames(names),
	}
	if pub := ParseDate(entry.Published); !pub.IsZero() {
		patch.Published = &pub
	}
	if d.Venue == "" {
		patch.Venue = reference.String("arXiv")
	}
	if entry.DOI != "" {
		patch.SetIdentifier(reference.KindDOI, NormalizeDOI(entry.DOI))
	}
	return patch, nil
}
