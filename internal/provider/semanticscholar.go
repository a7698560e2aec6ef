package provider

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/reference"
)

const (
	// SemanticScholarBaseURL is the Semantic Scholar Graph API.
	SemanticScholarBaseURL = "https://api.semanticscholar.org/graph/v1"

	s2Fields = "title,venue,year,publicationDate,abstract,authors,externalIds"
)

// SemanticScholar looks up preprints by DOI, arXiv id, or title, hoping to
// find the published version.
type SemanticScholar struct {
	BaseURL string
	APIKey  string
}

// NewSemanticScholar creates a Semantic Scholar provider.
func NewSemanticScholar(baseURL, apiKey string) *SemanticScholar {
	if baseURL == "" {
		baseURL = SemanticScholarBaseURL
	}
	return &SemanticScholar{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey}
}

func (p *SemanticScholar) Name() string { return config.ProviderSemanticScholar }

func (p *SemanticScholar) Applies(d reference.Draft) bool {
	return d.IsPreprint() && (d.Identifier(reference.KindDOI) != "" ||
		d.Identifier(reference.KindArXiv) != "" || strings.TrimSpace(d.Title) != "")
}

func (p *SemanticScholar) BuildRequest(d reference.Draft) (Request, bool) {
	var u string
	switch {
	case d.Identifier(reference.KindDOI) != "":
		u = p.BaseURL + "/paper/DOI:" + NormalizeDOI(d.Identifier(reference.KindDOI)) + "?fields=" + s2Fields
	case d.Identifier(reference.KindArXiv) != "":
		u = p.BaseURL + "/paper/ARXIV:" + NormalizeArXivID(d.Identifier(reference.KindArXiv)) + "?fields=" + s2Fields
	case strings.TrimSpace(d.Title) != "":
		u = p.BaseURL + "/paper/search/match?query=" + url.QueryEscape(d.Title) + "&fields=" + s2Fields
	default:
		return Request{}, false
	}
	req := Request{URL: u}
	if p.APIKey != "" {
		req.Headers = map[string]string{"x-api-key": p.APIKey}
	}
	return req, true
}

type s2Paper struct {
	PaperID         string         `json:"paperId"`
	Title           string         `json:"title"`
	Venue           string         `json:"venue"`
	Year            int            `json:"year"`
	PublicationDate string         `json:"publicationDate"`
	Abstract        string         `json:"abstract"`
	Authors         []s2Author     `json:"authors"`
	ExternalIDs     map[string]any `json:"externalIds"`
}

type s2Author struct {
	Name string `json:"name"`
}

type s2MatchResponse struct {
	Data []s2Paper `json:"data"`
}

func (p *SemanticScholar) Parse(resp *Response, d reference.Draft) (*reference.Patch, error) {
	var paper s2Paper
	if strings.Contains(resp.URL, "/search/match") {
		var match s2MatchResponse
		if err := json.Unmarshal(resp.Body, &match); err != nil {
			return nil, parseErrorf("semanticscholar: %v", err)
		}
		if len(match.Data) == 0 {
			return nil, parseErrorf("semanticscholar: no match for title")
		}
		paper = match.Data[0]
		if !TitlesMatch(paper.Title, d.Title) {
			return nil, parseErrorf("semanticscholar: best match %q does not match title", paper.Title)
		}
	} else if err := json.Unmarshal(resp.Body, &paper); err != nil {
		return nil, parseErrorf("semanticscholar: %v", err)
	}
	if paper.Title == "" {
		return nil, parseErrorf("semanticscholar: response has no title")
	}

	patch := &reference.Patch{Title: reference.String(paper.Title)}
	// Only a real venue is news; arXiv.org would not change anything.
	if paper.Venue != "" && !reference.IsPreprintVenue(paper.Venue) {
		patch.Venue = reference.String(paper.Venue)
	}
	if paper.Abstract != "" {
		patch.Abstract = reference.String(paper.Abstract)
	}
	pub := ParseDate(paper.PublicationDate)
	if pub.Year == 0 {
		pub = reference.PublicationDate{Year: paper.Year}
	}
	if !pub.IsZero() {
		patch.Published = &pub
	}
	if len(paper.Authors) > 0 {
		names := make([]string, 0, len(paper.Authors))
		for _, a := range paper.Authors {
			names = append(names, a.Name)
		}
		patch.Authors = reference.ParseAuthorNames(names)
	}

	patch.SetIdentifier(reference.KindS2, paper.PaperID)
	if doi, ok := paper.ExternalIDs["DOI"].(string); ok {
		patch.SetIdentifier(reference.KindDOI, NormalizeDOI(doi))
	}
	if arxiv, ok := paper.ExternalIDs["ArXiv"].(string); ok {
		patch.SetIdentifier(reference.KindArXiv, arxiv)
	}
	if dblp, ok := paper.ExternalIDs["DBLP"].(string); ok {
		patch.SetIdentifier(reference.KindDBLP, dblp)
	}
	return patch, nil
}
