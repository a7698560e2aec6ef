package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matsen/plib/internal/reference"
)

// GlobalConfig represents configuration stored in ~/.config/plib/config.yml.
type GlobalConfig struct {
	LibraryPath string            `yaml:"library_path,omitempty"`
	Providers   []ProviderConfig  `yaml:"providers,omitempty"`
	Merge       map[string]string `yaml:"merge,omitempty"` // field -> keep-nonempty | allow-empty
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SchedulerConfig controls the background preprint re-scrape.
type SchedulerConfig struct {
	Enabled      bool `yaml:"enabled"`
	IntervalDays int  `yaml:"interval_days"`
}

// IngestConfig bounds the pipeline's outbound work.
type IngestConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "plib"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"

	DefaultConcurrency    = 8
	DefaultRequestTimeout = 10 * time.Second
	DefaultIntervalDays   = 7
)

var (
	globalConfigMu    sync.Mutex
	globalConfigCache *GlobalConfig
)

// DefaultGlobalConfig returns the configuration used when no file exists.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Providers: DefaultProviders(),
		Scheduler: SchedulerConfig{Enabled: true, IntervalDays: DefaultIntervalDays},
		Ingest: IngestConfig{
			Concurrency:    DefaultConcurrency,
			RequestTimeout: DefaultRequestTimeout,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/plib/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file once per process.
// Returns the defaults (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()

	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	cfg, err := LoadGlobalConfigFile(GlobalConfigPath())
	if err != nil {
		return nil, err
	}
	globalConfigCache = cfg
	return cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigMu.Lock()
	globalConfigCache = nil
	globalConfigMu.Unlock()
}

// LoadGlobalConfigFile reads and validates a global config file without caching.
// A missing file yields the defaults.
func LoadGlobalConfigFile(path string) (*GlobalConfig, error) {
	if path == "" {
		return DefaultGlobalConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultGlobalConfig(), nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	return ParseGlobalConfig(data)
}

// ParseGlobalConfig decodes YAML on top of the defaults. Unknown keys are
// rejected so that a typo in a provider option fails loudly.
func ParseGlobalConfig(data []byte) (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	// Decoding over the defaults keeps omitted sections at their default values.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}
	cfg.LibraryPath = ExpandPath(cfg.LibraryPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the global configuration values.
func (c *GlobalConfig) Validate() error {
	if err := ValidateProviders(c.Providers); err != nil {
		return err
	}
	if _, err := c.MergePolicy(); err != nil {
		return err
	}
	if c.Scheduler.IntervalDays < 0 {
		return fmt.Errorf("scheduler.interval_days must be >= 0, got %d", c.Scheduler.IntervalDays)
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be > 0, got %d", c.Ingest.Concurrency)
	}
	if c.Ingest.RequestTimeout <= 0 {
		return fmt.Errorf("ingest.request_timeout must be > 0, got %s", c.Ingest.RequestTimeout)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be 'console' or 'json', got %q", c.Logging.Format)
	}
	return nil
}

// MergePolicy returns the validated per-field merge policy.
func (c *GlobalConfig) MergePolicy() (reference.MergePolicy, error) {
	return reference.ParseMergePolicy(c.Merge)
}

// Save writes the global configuration to path, creating parent directories.
func (c *GlobalConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding global config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing global config: %w", err)
	}
	return nil
}

// HelpfulConfigMessage returns a helpful message when no library is found.
func HelpfulConfigMessage() string {
	configPath := GlobalConfigPath()
	return fmt.Sprintf(`No plib library found.

Create one with:
  plib init

Or point at an existing library from %s:
  library_path: /path/to/your/library`,
		configPath)
}
