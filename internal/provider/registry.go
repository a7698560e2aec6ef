package provider

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/reference"
)

// Factory builds the providers for one config entry. Fan-out sources return
// several providers sharing the entry's name.
type Factory func(cfg config.ProviderConfig) ([]Provider, error)

// keyed is implemented by fan-out providers whose entries need distinct keys.
type keyed interface {
	Key() string
}

// Registry holds the ordered, immutable set of configured sources. Rebuild
// swaps in a new snapshot atomically; readers never see a partial list.
type Registry struct {
	fetcher Fetcher
	root    string
	logger  *zap.Logger

	mu        sync.Mutex // serializes rebuilds
	factories map[string]Factory
	policy    reference.MergePolicy
	timeout   time.Duration

	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	sources []*Source
	names   []string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLibraryRoot sets the directory that relative file paths resolve against.
func WithLibraryRoot(root string) RegistryOption {
	return func(r *Registry) {
		r.root = root
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFactory registers or replaces the factory for a provider name.
func WithFactory(name string, f Factory) RegistryOption {
	return func(r *Registry) {
		r.factories[name] = f
	}
}

// WithMergePolicy sets the per-field empty-value policy given to every source.
func WithMergePolicy(policy reference.MergePolicy) RegistryOption {
	return func(r *Registry) {
		r.policy = policy
	}
}

// WithRequestTimeout sets the per-request timeout given to every source.
func WithRequestTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.timeout = d
	}
}

// NewRegistry creates an empty registry that hands fetcher to network sources.
func NewRegistry(fetcher Fetcher, opts ...RegistryOption) *Registry {
	r := &Registry{
		fetcher:   fetcher,
		logger:    zap.NewNop(),
		factories: make(map[string]Factory),
		timeout:   DefaultTimeout,
	}
	r.registerBuiltins()
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(&snapshot{})
	return r
}

func (r *Registry) registerBuiltins() {
	r.factories[config.ProviderPDF] = func(config.ProviderConfig) ([]Provider, error) {
		return []Provider{NewPDF(r.root)}, nil
	}
	r.factories[config.ProviderDOI] = func(config.ProviderConfig) ([]Provider, error) {
		return []Provider{NewDOI("")}, nil
	}
	r.factories[config.ProviderArXiv] = func(config.ProviderConfig) ([]Provider, error) {
		return []Provider{NewArXiv("")}, nil
	}
	r.factories[config.ProviderDBLP] = func(config.ProviderConfig) ([]Provider, error) {
		return NewDBLPSources(""), nil
	}
	r.factories[config.ProviderSemanticScholar] = func(cfg config.ProviderConfig) ([]Provider, error) {
		var key string
		if cfg.Options.APIKeyEnv != "" {
			key = os.Getenv(cfg.Options.APIKeyEnv)
		}
		return []Provider{NewSemanticScholar("", key)}, nil
	}
	r.factories[config.ProviderOpenReview] = func(config.ProviderConfig) ([]Provider, error) {
		return []Provider{NewOpenReview("")}, nil
	}
}

// Rebuild replaces the source list. On error the previous list stays active.
func (r *Registry) Rebuild(cfgs []config.ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.build(cfgs, r.policy, r.timeout)
	if err != nil {
		return err
	}
	r.snap.Store(snap)
	r.logger.Info("provider registry rebuilt",
		zap.Int("sources", len(snap.sources)),
		zap.Strings("names", snap.names))
	return nil
}

// Apply rebuilds from a full global config, also taking its merge policy and
// request timeout. On error nothing changes.
func (r *Registry) Apply(cfg *config.GlobalConfig) error {
	policy, err := cfg.MergePolicy()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	timeout := cfg.Ingest.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.build(cfg.Providers, policy, timeout)
	if err != nil {
		return err
	}
	r.policy, r.timeout = policy, timeout
	r.snap.Store(snap)
	r.logger.Info("provider registry rebuilt",
		zap.Int("sources", len(snap.sources)),
		zap.Strings("names", snap.names))
	return nil
}

func (r *Registry) build(cfgs []config.ProviderConfig, policy reference.MergePolicy, timeout time.Duration) (*snapshot, error) {
	seen := make(map[string]bool, len(cfgs))
	for i, cfg := range cfgs {
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrConfiguration, i)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate provider %q", ErrConfiguration, name)
		}
		seen[name] = true
	}

	ordered := make([]config.ProviderConfig, len(cfgs))
	copy(ordered, cfgs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	snap := &snapshot{}
	for _, cfg := range ordered {
		providers, err := r.instantiate(cfg)
		if err != nil {
			return nil, err
		}
		for _, p := range providers {
			if p.Name() != cfg.Name {
				return nil, fmt.Errorf("%w: factory for %q built provider named %q", ErrConfiguration, cfg.Name, p.Name())
			}
			key := cfg.Name
			if k, ok := p.(keyed); ok {
				key = k.Key()
			}
			snap.sources = append(snap.sources, &Source{
				Key:       key,
				Provider:  p,
				Enabled:   cfg.Enabled,
				Priority:  cfg.Priority,
				Headers:   cfg.Options.Headers,
				RateLimit: cfg.Options.RateLimit,
				Timeout:   timeout,
				Fetcher:   r.fetcher,
				Policy:    policy,
			})
		}
		snap.names = append(snap.names, cfg.Name)
	}
	return snap, nil
}

func (r *Registry) instantiate(cfg config.ProviderConfig) ([]Provider, error) {
	switch cfg.Kind {
	case config.KindCustom:
		if _, builtin := r.factories[cfg.Name]; builtin {
			return nil, fmt.Errorf("%w: custom provider may not reuse built-in name %q", ErrConfiguration, cfg.Name)
		}
		p, err := NewCustom(cfg)
		if err != nil {
			return nil, err
		}
		return []Provider{p}, nil
	case "":
		f, ok := r.factories[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown provider %q", ErrConfiguration, cfg.Name)
		}
		providers, err := f(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfiguration, cfg.Name, err)
		}
		return providers, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown kind %q", ErrConfiguration, cfg.Name, cfg.Kind)
	}
}

// List returns the enabled sources in execution order: ascending priority,
// config file order among equals.
func (r *Registry) List() []*Source {
	all := r.snap.Load().sources
	enabled := make([]*Source, 0, len(all))
	for _, s := range all {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

// All returns every configured source, enabled or not, in execution order.
func (r *Registry) All() []*Source {
	return append([]*Source(nil), r.snap.Load().sources...)
}

// Lookup returns every source with the given logical name, enabled or not.
func (r *Registry) Lookup(name string) []*Source {
	var matches []*Source
	for _, s := range r.snap.Load().sources {
		if s.Name() == name {
			matches = append(matches, s)
		}
	}
	return matches
}

// Names returns the configured logical names in execution order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.snap.Load().names...)
}
