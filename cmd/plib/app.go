package main

import (
	"context"
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/ingest"
	"github.com/matsen/plib/internal/library"
	"github.com/matsen/plib/internal/logging"
	"github.com/matsen/plib/internal/provider"
	"github.com/matsen/plib/internal/reference"
	"github.com/matsen/plib/internal/resolve"
	"github.com/matsen/plib/internal/storage"
)

// app wires the pipeline for one command invocation.
type app struct {
	root     string
	cfg      *config.Config
	global   *config.GlobalConfig
	logger   *zap.Logger
	store    *storage.Store
	registry *provider.Registry
	resolver *resolve.Orchestrator
	files    *library.Library
	coord    *ingest.Coordinator

	closeOnce sync.Once
}

// findLibraryRoot locates the library: PLIB_ROOT, then library_path from the
// global config, then the current directory and its parents.
func findLibraryRoot(global *config.GlobalConfig) (string, error) {
	if root := os.Getenv("PLIB_ROOT"); root != "" {
		return config.FindLibrary(config.ExpandPath(root))
	}
	if global.LibraryPath != "" && config.IsLibrary(global.LibraryPath) {
		return global.LibraryPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root, err := config.FindLibrary(cwd)
	if err != nil {
		return "", errors.New(config.HelpfulConfigMessage())
	}
	return root, nil
}

// mustOpenApp opens the library and builds the pipeline, or exits.
func mustOpenApp() *app {
	global, err := config.LoadGlobalConfig()
	if err != nil {
		exitWithError(ExitConfigError, "loading global config: %v", err)
	}
	root, err := findLibraryRoot(global)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}

	logger, err := logging.New(global.Logging)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	store, err := storage.Open(config.DBPath(root))
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}

	a, err := newApp(root, cfg, global, store, logger)
	if err != nil {
		store.Close()
		exitWithError(ExitConfigError, "%v", err)
	}
	return a
}

func newApp(root string, cfg *config.Config, global *config.GlobalConfig, store *storage.Store, logger *zap.Logger) (*app, error) {
	fetcher := provider.NewHTTPFetcher(provider.WithTimeout(global.Ingest.RequestTimeout))
	registry := provider.NewRegistry(fetcher,
		provider.WithLibraryRoot(root),
		provider.WithLogger(logger.Named("provider")),
	)
	if err := registry.Apply(global); err != nil {
		return nil, err
	}

	resolver := resolve.New(registry, logger.Named("resolve"))
	files := library.New(root, cfg, fetcher, logger.Named("library"))
	coord := ingest.New(store, resolver, files,
		ingest.WithConcurrency(global.Ingest.Concurrency),
		ingest.WithLogger(logger.Named("ingest")),
	)

	return &app{
		root:     root,
		cfg:      cfg,
		global:   global,
		logger:   logger,
		store:    store,
		registry: registry,
		resolver: resolver,
		files:    files,
		coord:    coord,
	}, nil
}

// Close releases the store. It is safe to call more than once, so commands
// can close before an exiting output call.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		_ = a.logger.Sync()
		a.store.Close()
	})
}

// mustGet loads one paper or exits.
func (a *app) mustGet(ctx context.Context, id string) reference.Draft {
	d, err := a.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		exitWithError(ExitDataError, "paper not found: %s", id)
	}
	if err != nil {
		exitWithError(ExitError, "getting paper: %v", err)
	}
	return d
}
