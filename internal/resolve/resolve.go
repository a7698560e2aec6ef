// Package resolve runs a draft through the configured metadata sources.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/matsen/plib/internal/metrics"
	"github.com/matsen/plib/internal/provider"
	"github.com/matsen/plib/internal/reference"
)

// ErrUnknownSource is returned when a single-source run names no configured source.
var ErrUnknownSource = errors.New("unknown metadata source")

// Sources is the view of the registry the orchestrator needs.
type Sources interface {
	List() []*provider.Source
	Lookup(name string) []*provider.Source
}

// Orchestrator applies sources to drafts in registry order.
type Orchestrator struct {
	sources Sources
	logger  *zap.Logger
}

// New creates an orchestrator over sources.
func New(sources Sources, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{sources: sources, logger: logger}
}

// Resolve runs every enabled source whose logical name is not excluded, in
// order, each seeing the previous one's output. Source failures are logged
// and skipped. With no sources the draft is returned unchanged.
func (o *Orchestrator) Resolve(ctx context.Context, d reference.Draft, excluded ...string) reference.Draft {
	for _, src := range o.sources.List() {
		if slices.Contains(excluded, src.Name()) {
			continue
		}
		if ctx.Err() != nil {
			o.logger.Debug("resolution cancelled", zap.String("draft", d.ID), zap.Error(ctx.Err()))
			return d
		}
		d = o.scrape(ctx, src, d, false)
	}
	return d
}

// ResolveOne forces every source with the given logical name, enabled or not.
// An unknown name leaves the draft unchanged.
func (o *Orchestrator) ResolveOne(ctx context.Context, d reference.Draft, name string) reference.Draft {
	out, _ := o.ResolveOneChecked(ctx, d, name)
	return out
}

// ResolveOneChecked is ResolveOne but reports unknown names.
func (o *Orchestrator) ResolveOneChecked(ctx context.Context, d reference.Draft, name string) (reference.Draft, error) {
	sources := o.sources.Lookup(name)
	if len(sources) == 0 {
		return d, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	for _, src := range sources {
		if ctx.Err() != nil {
			return d, nil
		}
		d = o.scrape(ctx, src, d, true)
	}
	return d, nil
}

// scrape runs one source. Source.Scrape already contains provider failures;
// the recover here covers anything that escapes it.
func (o *Orchestrator) scrape(ctx context.Context, src *provider.Source, d reference.Draft, force bool) (out reference.Draft) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("metadata source panicked",
				zap.String("source", src.Key),
				zap.String("draft", d.ID),
				zap.Any("panic", r))
			metrics.ProviderScrapes.WithLabelValues(src.Key, string(provider.StatusFailed)).Inc()
			out = d
		}
	}()

	out, outcome := src.Scrape(ctx, d, force)
	metrics.ProviderScrapes.WithLabelValues(src.Name(), string(outcome.Status)).Inc()

	switch outcome.Status {
	case provider.StatusFailed:
		o.logger.Warn("metadata source failed",
			zap.String("source", outcome.Source),
			zap.String("draft", d.ID),
			zap.Error(outcome.Err))
	case provider.StatusApplied:
		o.logger.Debug("metadata source applied",
			zap.String("source", outcome.Source),
			zap.String("draft", d.ID))
	}
	return out
}
