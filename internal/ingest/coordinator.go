// Package ingest coordinates reading, resolving, relocating and committing
// papers. Every batch operation reports a per-item Summary; one failing item
// never aborts the rest of the batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/library"
	"github.com/matsen/plib/internal/metrics"
	"github.com/matsen/plib/internal/reference"
	"github.com/matsen/plib/internal/storage"
)

// Stages at which an item can fail.
const (
	StageParse    = "parse"
	StageRead     = "read"
	StageLoad     = "load"
	StageResolve  = "resolve"
	StageValidate = "validate"
	StageRelocate = "relocate"
	StageCommit   = "commit"
	StageDelete   = "delete"
)

// Operation names used in metrics.
const (
	opIngest   = "ingest"
	opRescrape = "rescrape"
	opUpdate   = "update"
	opDelete   = "delete"
)

// ErrSupplementNotFound is returned when a paper has no such supplementary file.
var ErrSupplementNotFound = errors.New("supplementary file not found")

// Store is the persistence the coordinator needs.
type Store interface {
	Get(ctx context.Context, id string) (reference.Draft, error)
	Query(ctx context.Context, f storage.Filter) ([]reference.Draft, error)
	Save(ctx context.Context, d reference.Draft) (*reference.Draft, error)
	Remove(ctx context.Context, id string) (reference.Draft, error)
	PruneCategorizers(ctx context.Context) (int, error)
}

// Resolver runs drafts through metadata sources.
type Resolver interface {
	Resolve(ctx context.Context, d reference.Draft, excluded ...string) reference.Draft
	ResolveOneChecked(ctx context.Context, d reference.Draft, name string) (reference.Draft, error)
}

// ItemResult is the outcome for one input of a batch.
type ItemResult struct {
	Ref   string `json:"ref"`
	ID    string `json:"id,omitempty"`
	Stage string `json:"stage,omitempty"` // where it failed, empty on success
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// OK reports whether the item succeeded.
func (r ItemResult) OK() bool {
	return r.Err == nil
}

// Summary reports a batch. Succeeded + Failed always equals Total.
type Summary struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

// WithFailures returns the summary with one failed item per error appended.
// Failures found before the batch ran, such as unparseable import entries,
// are reported this way so the counts cover the whole input.
func (s Summary) WithFailures(ref, stage string, errs []error) Summary {
	for _, err := range errs {
		s.Items = append(s.Items, ItemResult{Ref: ref, Stage: stage, Err: err, Error: err.Error()})
		s.Total++
		s.Failed++
	}
	return s
}

func summarize(op string, items []ItemResult) Summary {
	s := Summary{Total: len(items), Items: items}
	for i := range s.Items {
		if s.Items[i].Err != nil {
			s.Items[i].Error = s.Items[i].Err.Error()
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	metrics.RecordItems(op, s.Succeeded, s.Failed)
	return s
}

// Coordinator runs the ingestion pipeline.
type Coordinator struct {
	store       Store
	resolver    Resolver
	files       *library.Library
	logger      *zap.Logger
	concurrency int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConcurrency bounds parallel reads and resolutions.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a coordinator.
func New(store Store, resolver Resolver, files *library.Library, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		resolver:    resolver,
		files:       files,
		logger:      zap.NewNop(),
		concurrency: config.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// item is one draft moving through a batch.
type item struct {
	result   ItemResult
	draft    reference.Draft
	original reference.Draft // as read or loaded, before relocation
}

func (it *item) fail(stage string, err error) {
	it.result.Stage = stage
	it.result.Err = err
}

func (it *item) alive() bool {
	return it.result.Err == nil
}

// Ingest reads raw references (file paths, URLs, DOIs, arXiv ids), resolves
// metadata for each, moves the files into the library, and commits the
// records. Items that fail at any stage are reported and any files already
// placed for them are removed again.
func (c *Coordinator) Ingest(ctx context.Context, refs []string) Summary {
	items := make([]*item, len(refs))
	for i, ref := range refs {
		items[i] = &item{result: ItemResult{Ref: ref}}
	}

	c.parallel(items, StageRead, func(it *item) {
		d, err := c.files.Read(ctx, it.result.Ref)
		if err != nil {
			it.fail(StageRead, err)
			return
		}
		it.draft = d
		it.original = d
		it.result.ID = d.ID
	})

	c.parallel(items, StageResolve, func(it *item) {
		it.draft = c.resolver.Resolve(ctx, it.draft)
	})

	c.commitAll(ctx, items)
	return c.finish(opIngest, items)
}

// Rescrape re-resolves stored papers, skipping the excluded sources, and
// commits the results.
func (c *Coordinator) Rescrape(ctx context.Context, ids []string, excluded ...string) Summary {
	items := c.load(ctx, ids)
	c.parallel(items, StageResolve, func(it *item) {
		it.draft = c.resolver.Resolve(ctx, it.draft, excluded...)
	})
	c.commitAll(ctx, items)
	return c.finish(opRescrape, items)
}

// RescrapeFrom forces one source, enabled or not, over stored papers.
func (c *Coordinator) RescrapeFrom(ctx context.Context, ids []string, source string) Summary {
	items := c.load(ctx, ids)
	c.parallel(items, StageResolve, func(it *item) {
		d, err := c.resolver.ResolveOneChecked(ctx, it.draft, source)
		if err != nil {
			it.fail(StageResolve, err)
			return
		}
		it.draft = d
	})
	c.commitAll(ctx, items)
	return c.finish(opRescrape, items)
}

// RescrapePreprints rescrapes every stored paper whose venue is empty or
// preprint-like.
func (c *Coordinator) RescrapePreprints(ctx context.Context) (Summary, error) {
	papers, err := c.store.Query(ctx, storage.Filter{Preprint: true})
	if err != nil {
		return Summary{}, fmt.Errorf("querying preprints: %w", err)
	}
	ids := make([]string, len(papers))
	for i, p := range papers {
		ids[i] = p.ID
	}
	c.logger.Info("rescraping preprints", zap.Int("count", len(ids)))
	return c.Rescrape(ctx, ids), nil
}

// Update relocates and commits drafts without running any source. It is used
// for edits and imports.
func (c *Coordinator) Update(ctx context.Context, drafts []reference.Draft) Summary {
	items := make([]*item, len(drafts))
	for i, d := range drafts {
		items[i] = &item{result: ItemResult{Ref: d.ID, ID: d.ID}, draft: d, original: d}
	}
	c.commitAll(ctx, items)
	return c.finish(opUpdate, items)
}

// Delete removes papers from the store and then deletes their files. File
// removal failures are logged; the records are already gone.
func (c *Coordinator) Delete(ctx context.Context, ids []string) Summary {
	items := make([]*item, len(ids))
	for i, id := range ids {
		it := &item{result: ItemResult{Ref: id, ID: id}}
		items[i] = it

		removed, err := c.store.Remove(ctx, id)
		if err != nil {
			it.fail(StageDelete, err)
			continue
		}
		if err := c.files.Remove(removed); err != nil {
			c.logger.Warn("could not remove paper files", zap.String("id", id), zap.Error(err))
		}
	}
	return c.finish(opDelete, items)
}

// DeleteSupplement detaches one supplementary file from a paper and deletes
// it. The record is committed before the file is removed.
func (c *Coordinator) DeleteSupplement(ctx context.Context, id, path string) (reference.Draft, error) {
	d, err := c.store.Get(ctx, id)
	if err != nil {
		return reference.Draft{}, err
	}
	if !slices.Contains(d.SupplementPaths, path) {
		return reference.Draft{}, fmt.Errorf("%w: %s has no supplement %q", ErrSupplementNotFound, id, path)
	}

	updated := d.RemoveSupplement(path)
	if _, err := c.store.Save(ctx, updated); err != nil {
		return reference.Draft{}, err
	}
	if err := c.files.RemoveFile(path); err != nil {
		c.logger.Warn("could not remove supplementary file", zap.String("id", id), zap.String("path", path), zap.Error(err))
	}
	return updated, nil
}

// PruneCategorizers deletes tags and folders no paper uses.
func (c *Coordinator) PruneCategorizers(ctx context.Context) (int, error) {
	return c.store.PruneCategorizers(ctx)
}

func (c *Coordinator) load(ctx context.Context, ids []string) []*item {
	items := make([]*item, len(ids))
	for i, id := range ids {
		it := &item{result: ItemResult{Ref: id, ID: id}}
		items[i] = it
		d, err := c.store.Get(ctx, id)
		if err != nil {
			it.fail(StageLoad, err)
			continue
		}
		it.draft = d
		it.original = d
	}
	return items
}

// parallel runs fn over the live items with bounded concurrency. Each
// goroutine owns its item.
func (c *Coordinator) parallel(items []*item, stage string, fn func(*item)) {
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for _, it := range items {
		if !it.alive() {
			continue
		}
		wg.Add(1)
		go func(it *item) {
			defer wg.Done()
			sem <- struct{}{}        // acquire semaphore
			defer func() { <-sem }() // release semaphore
			defer func() {
				if r := recover(); r != nil {
					it.fail(stage, fmt.Errorf("panic: %v", r))
				}
			}()
			fn(it)
		}(it)
	}

	wg.Wait()
}

// commitAll relocates files one item at a time, then commits each record in
// its own transaction. A failed commit undoes that item's relocation.
func (c *Coordinator) commitAll(ctx context.Context, items []*item) {
	for _, it := range items {
		if !it.alive() {
			continue
		}
		if err := it.draft.Validate(); err != nil {
			it.fail(StageValidate, err)
			continue
		}

		placed, relocation, err := c.files.Relocate(it.draft)
		if err != nil {
			it.fail(StageRelocate, err)
			continue
		}
		placed.UpdatedAt = time.Now().UTC()

		if _, err := c.store.Save(ctx, placed); err != nil {
			c.files.Undo(relocation)
			it.fail(StageCommit, err)
			c.logger.Warn("commit failed, file moves undone",
				zap.String("id", placed.ID), zap.Int("moves", len(relocation.Moves)), zap.Error(err))
			continue
		}
		it.draft = placed
	}
}

// finish removes leftover downloads for failed items and builds the summary.
func (c *Coordinator) finish(op string, items []*item) Summary {
	results := make([]ItemResult, len(items))
	for i, it := range items {
		if !it.alive() {
			c.files.Discard(it.original)
			c.logger.Warn("item failed",
				zap.String("operation", op),
				zap.String("ref", it.result.Ref),
				zap.String("stage", it.result.Stage),
				zap.Error(it.result.Err))
		}
		results[i] = it.result
	}
	return summarize(op, results)
}
