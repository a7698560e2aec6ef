// Package provider defines metadata sources and the registry that orders them.
//
// A Provider is a pure description of one source: whether it applies to a
// draft, which request to make, and how to turn the response into a patch.
// Source wraps a Provider with its configuration and does the I/O, so that
// every failure is contained and reported as an Outcome instead of an error.
package provider

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/matsen/plib/internal/reference"
)

// Provider is one metadata source.
type Provider interface {
	// Name is the logical name used for exclusion and single-source runs.
	Name() string
	// Applies reports whether the source is worth asking about d. It must not do I/O.
	Applies(d reference.Draft) bool
	// BuildRequest returns the request to make, or false to skip.
	BuildRequest(d reference.Draft) (Request, bool)
	// Parse turns a response into a patch. An error means the draft is left unchanged.
	Parse(resp *Response, d reference.Draft) (*reference.Patch, error)
}

// Status is the result of one scrape.
type Status string

const (
	StatusApplied       Status = "applied"
	StatusUnchanged     Status = "unchanged"
	StatusDisabled      Status = "disabled"
	StatusNotApplicable Status = "not_applicable"
	StatusSkipped       Status = "skipped"
	StatusFailed        Status = "failed"
)

// Outcome describes what a Source did with a draft.
type Outcome struct {
	Source string // entry key, e.g. dblp-by-time-0
	Status Status
	Err    error // set when Status is StatusFailed
}

// Source is a configured provider entry: the provider plus its enablement,
// priority, request options, and the fetcher it uses.
type Source struct {
	Key       string // unique entry key; equals Provider.Name() except for fan-out entries
	Provider  Provider
	Enabled   bool
	Priority  int
	Headers   map[string]string
	RateLimit float64
	Timeout   time.Duration
	Fetcher   Fetcher
	Policy    reference.MergePolicy
}

// Name returns the logical provider name.
func (s *Source) Name() string {
	return s.Provider.Name()
}

// Scrape runs the source against d and returns the possibly updated draft.
// It never fails: disabled, inapplicable, and failing sources all return d
// unchanged with an Outcome explaining why. force bypasses only the enabled
// check and lets allow-empty fields be cleared.
func (s *Source) Scrape(ctx context.Context, d reference.Draft, force bool) (out reference.Draft, outcome Outcome) {
	outcome = Outcome{Source: s.Key}
	defer func() {
		if r := recover(); r != nil {
			out = d
			outcome.Status = StatusFailed
			outcome.Err = fmt.Errorf("provider %s panicked: %v", s.Key, r)
		}
	}()

	if !s.Enabled && !force {
		outcome.Status = StatusDisabled
		return d, outcome
	}
	if !s.Provider.Applies(d) {
		outcome.Status = StatusNotApplicable
		return d, outcome
	}
	req, ok := s.Provider.BuildRequest(d)
	if !ok {
		outcome.Status = StatusSkipped
		return d, outcome
	}
	req = s.decorate(req)

	fetcher := s.Fetcher
	if local, ok := s.Provider.(Fetcher); ok {
		fetcher = local
	}
	if fetcher == nil {
		outcome.Status = StatusFailed
		outcome.Err = fmt.Errorf("%w: %s has no fetcher", ErrSourceUnavailable, s.Key)
		return d, outcome
	}

	resp, err := fetcher.Fetch(ctx, req)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		return d, outcome
	}

	patch, err := s.Provider.Parse(resp, d)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		return d, outcome
	}
	if patch.IsEmpty() {
		outcome.Status = StatusUnchanged
		return d, outcome
	}

	outcome.Status = StatusApplied
	return patch.Apply(d, s.Policy, force), outcome
}

// decorate layers configured headers, timeout, and rate limit over the
// provider's request. Configured headers win.
func (s *Source) decorate(req Request) Request {
	if len(s.Headers) > 0 {
		headers := make(map[string]string, len(req.Headers)+len(s.Headers))
		maps.Copy(headers, req.Headers)
		maps.Copy(headers, s.Headers)
		req.Headers = headers
	}
	if req.Timeout == 0 {
		req.Timeout = s.Timeout
	}
	if req.RateLimit == 0 {
		req.RateLimit = s.RateLimit
	}
	return req
}
