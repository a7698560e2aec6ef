package provider

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/reference"
)

// OpenReviewBaseURL is the OpenReview v2 API.
const OpenReviewBaseURL = "https://api2.openreview.net"

// OpenReview searches accepted OpenReview submissions by title.
type OpenReview struct {
	BaseURL string
}

// NewOpenReview creates an OpenReview provider.
func NewOpenReview(baseURL string) *OpenReview {
	if baseURL == "" {
		baseURL = OpenReviewBaseURL
	}
	return &OpenReview{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (p *OpenReview) Name() string { return config.ProviderOpenReview }

func (p *OpenReview) Applies(d reference.Draft) bool {
	return d.IsPreprint() && strings.TrimSpace(d.Title) != ""
}

func (p *OpenReview) BuildRequest(d reference.Draft) (Request, bool) {
	q := url.Values{}
	q.Set("term", d.Title)
	q.Set("content", "all")
	q.Set("group", "all")
	q.Set("source", "forum")
	q.Set("limit", "10")
	return Request{URL: p.BaseURL + "/notes/search?" + q.Encode()}, true
}

type orValue[T any] struct {
	Value T `json:"value"`
}

type orNote struct {
	ID      string `json:"id"`
	PDate   int64  `json:"pdate"`
	Content struct {
		Title    orValue[string]   `json:"title"`
		Abstract orValue[string]   `json:"abstract"`
		Authors  orValue[[]string] `json:"authors"`
		Venue    orValue[string]   `json:"venue"`
	} `json:"content"`
}

type orSearchResponse struct {
	Notes []orNote `json:"notes"`
}

// unpublishedVenues mark notes that were never accepted anywhere.
var unpublishedVenues = []string{"submitted to", "withdrawn", "rejected", "desk rejected"}

func (p *OpenReview) Parse(resp *Response, d reference.Draft) (*reference.Patch, error) {
	var result orSearchResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, parseErrorf("openreview: %v", err)
	}

	for _, note := range result.Notes {
		if !TitlesMatch(note.Content.Title.Value, d.Title) {
			continue
		}
		venue := note.Content.Venue.Value
		if venue == "" || isUnpublishedVenue(venue) {
			continue
		}

		patch := &reference.Patch{
			Title:   reference.String(note.Content.Title.Value),
			Venue:   reference.String(venue),
			Authors: reference.ParseAuthorNames(note.Content.Authors.Value),
		}
		if note.Content.Abstract.Value != "" {
			patch.Abstract = reference.String(note.Content.Abstract.Value)
		}
		if note.PDate > 0 {
			t := time.UnixMilli(note.PDate).UTC()
			patch.Published = &reference.PublicationDate{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
		}
		patch.SetIdentifier(reference.KindOpenReview, note.ID)
		return patch, nil
	}
	return nil, nil
}

func isUnpublishedVenue(venue string) bool {
	v := strings.ToLower(venue)
	for _, marker := range unpublishedVenues {
		if strings.Contains(v, marker) {
			return true
		}
	}
	return false
}
