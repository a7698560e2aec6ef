package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/plib/internal/reference"
)

type fakeProvider struct {
	name    string
	applies bool
	skip    bool
	patch   *reference.Patch
	err     error
	panics  bool
}

func (p *fakeProvider) Name() string                   { return p.name }
func (p *fakeProvider) Applies(d reference.Draft) bool { return p.applies }

func (p *fakeProvider) BuildRequest(d reference.Draft) (Request, bool) {
	if p.skip {
		return Request{}, false
	}
	return Request{URL: "https://example.test/" + p.name, Headers: map[string]string{"Accept": "application/json"}}, true
}

func (p *fakeProvider) Parse(resp *Response, d reference.Draft) (*reference.Patch, error) {
	if p.panics {
		panic("boom")
	}
	return p.patch, p.err
}

type fakeFetcher struct {
	resp  *Response
	err   error
	calls int
	last  Request
}

func (f *fakeFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &Response{URL: req.URL, StatusCode: 200, Body: []byte("{}")}, nil
}

func titlePatch(title string) *reference.Patch {
	return &reference.Patch{Title: reference.String(title)}
}

func TestSourceScrape_Applied(t *testing.T) {
	fetcher := &fakeFetcher{}
	src := &Source{
		Key:      "fake",
		Provider: &fakeProvider{name: "fake", applies: true, patch: titlePatch("New Title")},
		Enabled:  true,
		Fetcher:  fetcher,
	}
	d := reference.NewDraft()

	out, outcome := src.Scrape(context.Background(), d, false)
	assert.Equal(t, StatusApplied, outcome.Status)
	assert.Equal(t, "fake", outcome.Source)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, "New Title", out.Title)
	assert.Equal(t, "", d.Title, "input draft must not be modified")
	assert.Equal(t, 1, fetcher.calls)
}

func TestSourceScrape_NoOpOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		source   *Source
		force    bool
		want     Status
		wantCall bool
	}{
		{
			name:   "disabled",
			source: &Source{Key: "f", Provider: &fakeProvider{name: "f", applies: true, patch: titlePatch("x")}},
			want:   StatusDisabled,
		},
		{
			name:   "not applicable",
			source: &Source{Key: "f", Enabled: true, Provider: &fakeProvider{name: "f", patch: titlePatch("x")}},
			want:   StatusNotApplicable,
		},
		{
			name:   "not applicable even when forced",
			source: &Source{Key: "f", Provider: &fakeProvider{name: "f", patch: titlePatch("x")}},
			force:  true,
			want:   StatusNotApplicable,
		},
		{
			name:   "request skipped",
			source: &Source{Key: "f", Enabled: true, Provider: &fakeProvider{name: "f", applies: true, skip: true}},
			want:   StatusSkipped,
		},
		{
			name:     "empty patch",
			source:   &Source{Key: "f", Enabled: true, Provider: &fakeProvider{name: "f", applies: true}},
			want:     StatusUnchanged,
			wantCall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{}
			tt.source.Fetcher = fetcher
			d := reference.NewDraft()
			d.Title = "Original"

			out, outcome := tt.source.Scrape(context.Background(), d, tt.force)
			assert.Equal(t, tt.want, outcome.Status)
			assert.Equal(t, d, out)
			assert.Equal(t, tt.wantCall, fetcher.calls > 0)
		})
	}
}

func TestSourceScrape_ForceRunsDisabled(t *testing.T) {
	src := &Source{
		Key:      "f",
		Provider: &fakeProvider{name: "f", applies: true, patch: titlePatch("Forced")},
		Fetcher:  &fakeFetcher{},
	}
	out, outcome := src.Scrape(context.Background(), reference.NewDraft(), true)
	assert.Equal(t, StatusApplied, outcome.Status)
	assert.Equal(t, "Forced", out.Title)
}

func TestSourceScrape_FailuresLeaveDraftUnchanged(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		fetcher  *fakeFetcher
		check    func(error) bool
	}{
		{
			name:     "fetch error",
			provider: &fakeProvider{name: "f", applies: true, patch: titlePatch("x")},
			fetcher:  &fakeFetcher{err: &StatusError{StatusCode: 503, URL: "u"}},
			check:    IsUnavailable,
		},
		{
			name:     "parse error",
			provider: &fakeProvider{name: "f", applies: true, err: parseErrorf("bad")},
			fetcher:  &fakeFetcher{},
			check:    IsParseFailure,
		},
		{
			name:     "panic",
			provider: &fakeProvider{name: "f", applies: true, panics: true},
			fetcher:  &fakeFetcher{},
			check:    func(err error) bool { return err != nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &Source{Key: "f", Enabled: true, Provider: tt.provider, Fetcher: tt.fetcher}
			d := reference.NewDraft()
			d.Title = "Original"

			out, outcome := src.Scrape(context.Background(), d, false)
			assert.Equal(t, StatusFailed, outcome.Status)
			assert.True(t, tt.check(outcome.Err), "unexpected error %v", outcome.Err)
			assert.Equal(t, d, out)
		})
	}
}

func TestSourceScrape_DecoratesRequest(t *testing.T) {
	fetcher := &fakeFetcher{}
	src := &Source{
		Key:       "f",
		Enabled:   true,
		Provider:  &fakeProvider{name: "f", applies: true},
		Fetcher:   fetcher,
		Headers:   map[string]string{"Accept": "text/plain", "X-Key": "secret"},
		RateLimit: 2,
	}
	src.Scrape(context.Background(), reference.NewDraft(), false)

	assert.Equal(t, "text/plain", fetcher.last.Headers["Accept"])
	assert.Equal(t, "secret", fetcher.last.Headers["X-Key"])
	assert.Equal(t, 2.0, fetcher.last.RateLimit)
}

type localProvider struct {
	fakeProvider
	fetched bool
}

func (p *localProvider) Fetch(ctx context.Context, req Request) (*Response, error) {
	p.fetched = true
	return &Response{URL: req.URL}, nil
}

func TestSourceScrape_PrefersProviderFetcher(t *testing.T) {
	shared := &fakeFetcher{}
	local := &localProvider{fakeProvider: fakeProvider{name: "local", applies: true, patch: titlePatch("Local")}}
	src := &Source{Key: "local", Enabled: true, Provider: local, Fetcher: shared}

	out, outcome := src.Scrape(context.Background(), reference.NewDraft(), false)
	require.Equal(t, StatusApplied, outcome.Status)
	assert.Equal(t, "Local", out.Title)
	assert.True(t, local.fetched)
	assert.Zero(t, shared.calls)
}

func TestSourceScrape_NoFetcher(t *testing.T) {
	src := &Source{Key: "f", Enabled: true, Provider: &fakeProvider{name: "f", applies: true}}
	_, outcome := src.Scrape(context.Background(), reference.NewDraft(), false)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.True(t, errors.Is(outcome.Err, ErrSourceUnavailable))
}
