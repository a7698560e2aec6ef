package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/reference"
)

// DBLPBaseURL is the dblp search API.
const DBLPBaseURL = "https://dblp.org"

// dblpPreprintVenue is dblp's name for arXiv.
const dblpPreprintVenue = "CoRR"

// NewDBLPSources returns the dblp fan-out: a plain title search, two title
// searches constrained to the draft's year and the year after, and a venue
// expander that turns dblp's abbreviated venue into its full name. All four
// share the logical name "dblp".
func NewDBLPSources(baseURL string) []Provider {
	if baseURL == "" {
		baseURL = DBLPBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return []Provider{
		&DBLP{BaseURL: baseURL, YearOffset: -1},
		&DBLP{BaseURL: baseURL, YearOffset: 0},
		&DBLP{BaseURL: baseURL, YearOffset: 1},
		&DBLPVenue{BaseURL: baseURL},
	}
}

// DBLP searches dblp publications by title. A YearOffset of -1 searches
// without a year; otherwise the query is restricted to the draft's year plus
// the offset.
type DBLP struct {
	BaseURL    string
	YearOffset int
}

func (p *DBLP) Name() string { return config.ProviderDBLP }

// Key returns the fan-out entry key.
func (p *DBLP) Key() string {
	if p.YearOffset < 0 {
		return config.ProviderDBLP
	}
	return fmt.Sprintf("%s-by-time-%d", config.ProviderDBLP, p.YearOffset)
}

func (p *DBLP) Applies(d reference.Draft) bool {
	if !d.IsPreprint() || strings.TrimSpace(d.Title) == "" {
		return false
	}
	return p.YearOffset < 0 || d.Published.Year > 0
}

func (p *DBLP) BuildRequest(d reference.Draft) (Request, bool) {
	q := strings.TrimSpace(d.Title)
	if p.YearOffset >= 0 {
		q += " year:" + strconv.Itoa(d.Published.Year+p.YearOffset) + ":"
	}
	return Request{URL: p.BaseURL + "/search/publ/api?format=json&h=10&q=" + url.QueryEscape(q)}, true
}

type dblpPublResponse struct {
	Result struct {
		Hits struct {
			Hit []struct {
				Info dblpPubl `json:"info"`
			} `json:"hit"`
		} `json:"hits"`
	} `json:"result"`
}

type dblpPubl struct {
	Title   string      `json:"title"`
	Venue   flexString  `json:"venue"`
	Year    string      `json:"year"`
	Key     string      `json:"key"`
	DOI     string      `json:"doi"`
	Authors dblpAuthors `json:"authors"`
}

// dblpAuthors handles dblp's habit of returning a single author as an object
// and several as an array.
type dblpAuthors struct {
	Author []dblpAuthor `json:"author"`
}

type dblpAuthor struct {
	Text string `json:"text"`
}

func (a *dblpAuthors) UnmarshalJSON(data []byte) error {
	var raw struct {
		Author json.RawMessage `json:"author"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Author) == 0 {
		return nil
	}
	if raw.Author[0] == '[' {
		return json.Unmarshal(raw.Author, &a.Author)
	}
	var one dblpAuthor
	if err := json.Unmarshal(raw.Author, &one); err != nil {
		return err
	}
	a.Author = []dblpAuthor{one}
	return nil
}

func (p *DBLP) Parse(resp *Response, d reference.Draft) (*reference.Patch, error) {
	var result dblpPublResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, parseErrorf("dblp: %v", err)
	}

	for _, hit := range result.Result.Hits.Hit {
		info := hit.Info
		if !TitlesMatch(info.Title, d.Title) || string(info.Venue) == dblpPreprintVenue || info.Venue == "" {
			continue
		}

		names := make([]string, 0, len(info.Authors.Author))
		for _, a := range info.Authors.Author {
			names = append(names, stripDBLPHomonym(a.Text))
		}
		patch := &reference.Patch{
			Title:   reference.String(strings.TrimSuffix(info.Title, ".")),
			Venue:   reference.String(string(info.Venue)),
			Authors: reference.ParseAuthorNames(names),
		}
		if year, err := strconv.Atoi(info.Year); err == nil {
			patch.Published = &reference.PublicationDate{Year: year}
		}
		patch.SetIdentifier(reference.KindDBLP, info.Key)
		if info.DOI != "" {
			patch.SetIdentifier(reference.KindDOI, NormalizeDOI(info.DOI))
		}
		return patch, nil
	}
	return nil, nil
}

// stripDBLPHomonym removes dblp's disambiguation suffix ("Wei Wang 0001").
func stripDBLPHomonym(name string) string {
	fields := strings.Fields(name)
	if n := len(fields); n > 1 {
		if _, err := strconv.Atoi(fields[n-1]); err == nil {
			fields = fields[:n-1]
		}
	}
	return strings.Join(fields, " ")
}

// DBLPVenue expands dblp's abbreviated venue into the full venue name using
// the publication key recorded by DBLP.
type DBLPVenue struct {
	BaseURL string
}

func (p *DBLPVenue) Name() string { return config.ProviderDBLP }

// Key returns the fan-out entry key.
func (p *DBLPVenue) Key() string { return config.ProviderDBLP + "-venue" }

func (p *DBLPVenue) Applies(d reference.Draft) bool {
	return dblpVenueKey(d.Identifier(reference.KindDBLP)) != "" && strings.TrimSpace(d.Venue) != ""
}

func (p *DBLPVenue) BuildRequest(d reference.Draft) (Request, bool) {
	return Request{URL: p.BaseURL + "/search/venue/api?format=json&h=20&q=" + url.QueryEscape(d.Venue)}, true
}

type dblpVenueResponse struct {
	Result struct {
		Hits struct {
			Hit []struct {
				Info struct {
					Venue   string `json:"venue"`
					Acronym string `json:"acronym"`
					URL     string `json:"url"`
				} `json:"info"`
			} `json:"hit"`
		} `json:"hits"`
	} `json:"result"`
}

func (p *DBLPVenue) Parse(resp *Response, d reference.Draft) (*reference.Patch, error) {
	var result dblpVenueResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, parseErrorf("dblp venue: %v", err)
	}
	key := dblpVenueKey(d.Identifier(reference.KindDBLP))
	for _, hit := range result.Result.Hits.Hit {
		if strings.Contains(hit.Info.URL, "/db/"+key+"/") && hit.Info.Venue != "" {
			return &reference.Patch{Venue: reference.String(hit.Info.Venue)}, nil
		}
	}
	return nil, nil
}

// dblpVenueKey returns the "conf/nips" part of a publication key such as
// "conf/nips/SmithJ20", or "" for keys that do not name a venue.
func dblpVenueKey(pubKey string) string {
	parts := strings.Split(pubKey, "/")
	if len(parts) < 3 || (parts[0] != "conf" && parts[0] != "journals") {
		return ""
	}
	if parts[0] == "journals" && parts[1] == "corr" {
		return ""
	}
	return parts[0] + "/" + parts[1]
}
