package provider

import (
	"encoding/json"
	"strings"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/reference"
)

// DOIBaseURL resolves DOIs through content negotiation.
const DOIBaseURL = "https://doi.org"

// DOI fetches CSL-JSON for drafts that carry a DOI.
type DOI struct {
	BaseURL string
}

// NewDOI creates a DOI provider.
func NewDOI(baseURL string) *DOI {
	if baseURL == "" {
		baseURL = DOIBaseURL
	}
	return &DOI{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (p *DOI) Name() string { return config.ProviderDOI }

func (p *DOI) Applies(d reference.Draft) bool {
	return d.Identifier(reference.KindDOI) != ""
}

func (p *DOI) BuildRequest(d reference.Draft) (Request, bool) {
	doi := NormalizeDOI(d.Identifier(reference.KindDOI))
	if doi == "" {
		return Request{}, false
	}
	return Request{
		URL:     p.BaseURL + "/" + doi,
		Headers: map[string]string{"Accept": "application/vnd.citationstyles.csl+json"},
	}, true
}

type cslAuthor struct {
	Given   string `json:"given"`
	Family  string `json:"family"`
	Literal string `json:"literal"`
}

type cslDate struct {
	DateParts [][]int `json:"date-parts"`
}

type cslItem struct {
	Type           string      `json:"type"`
	Title          flexString  `json:"title"`
	ContainerTitle flexString  `json:"container-title"`
	Publisher      string      `json:"publisher"`
	Abstract       string      `json:"abstract"`
	Author         []cslAuthor `json:"author"`
	Issued         cslDate     `json:"issued"`
	Published      cslDate     `json:"published"`
	DOI            string      `json:"DOI"`
}

func (p *DOI) Parse(resp *Response, d reference.Draft) (*reference.Patch, error) {
	var item cslItem
	if err := json.Unmarshal(resp.Body, &item); err != nil {
		return nil, parseErrorf("doi: %v", err)
	}
	if item.Title == "" {
		return nil, parseErrorf("doi: response has no title")
	}

	patch := &reference.Patch{Title: reference.String(collapseSpace(string(item.Title)))}

	// Posted content is a preprint; its container is the server, not a venue.
	if item.Type != "posted-content" && item.ContainerTitle != "" {
		patch.Venue = reference.String(collapseSpace(string(item.ContainerTitle)))
	}
	if item.Abstract != "" {
		patch.Abstract = reference.String(stripTags(item.Abstract))
	}

	date := item.Issued
	if len(date.DateParts) == 0 || len(date.DateParts[0]) == 0 {
		date = item.Published
	}
	if pub := cslPublicationDate(date); !pub.IsZero() {
		patch.Published = &pub
	}

	if len(item.Author) > 0 {
		authors := make([]reference.Author, 0, len(item.Author))
		for _, a := range item.Author {
			switch {
			case a.Family != "":
				authors = append(authors, reference.Author{First: a.Given, Last: a.Family})
			case a.Literal != "":
				authors = append(authors, reference.ParseAuthorName(a.Literal))
			}
		}
		patch.Authors = authors
	}
	if item.DOI != "" {
		patch.SetIdentifier(reference.KindDOI, NormalizeDOI(item.DOI))
	}
	return patch, nil
}

func cslPublicationDate(date cslDate) reference.PublicationDate {
	var pub reference.PublicationDate
	if len(date.DateParts) == 0 {
		return pub
	}
	parts := date.DateParts[0]
	if len(parts) >= 1 {
		pub.Year = parts[0]
	}
	if len(parts) >= 2 && parts[1] >= 1 && parts[1] <= 12 {
		pub.Month = parts[1]
	}
	if len(parts) >= 3 && parts[2] >= 1 && parts[2] <= 31 {
		pub.Day = parts[2]
	}
	return pub
}

// stripTags removes JATS markup that Crossref embeds in abstracts.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return collapseSpace(b.String())
}
