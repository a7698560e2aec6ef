// Package config handles library and global configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents library configuration stored in .plib/config.json.
type Config struct {
	PapersDir string `json:"papers_dir"`           // Directory for managed files, relative to the library root
	Layout    string `json:"layout,omitempty"`     // File naming: title or id
	PDFReader string `json:"pdf_reader,omitempty"` // Reader preference: system, skim, zathura, etc.
}

const (
	LibraryDir       = ".plib"
	ConfigFile       = "config.json"
	DBFile           = "library.db"
	DefaultPapersDir = "papers"
)

// Valid values for Config.Layout.
const (
	LayoutTitle = "title"
	LayoutID    = "id"
)

// ValidReaders lists the supported PDF reader values.
var ValidReaders = []string{"system", "skim", "zathura", "evince", "okular"}

// Default returns the configuration written by `plib init`.
func Default() *Config {
	return &Config{PapersDir: DefaultPapersDir, Layout: LayoutTitle}
}

// LibraryPath returns the path to the .plib directory from a root path.
func LibraryPath(root string) string {
	return filepath.Join(root, LibraryDir)
}

// ConfigPath returns the path to config.json from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, LibraryDir, ConfigFile)
}

// DBPath returns the path to the library database from a root path.
func DBPath(root string) string {
	return filepath.Join(root, LibraryDir, DBFile)
}

// PapersPath returns the absolute directory that holds managed files.
func (c *Config) PapersPath(root string) string {
	dir := c.PapersDir
	if dir == "" {
		dir = DefaultPapersDir
	}
	dir = ExpandPath(dir)
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

// IsLibrary checks if the given path contains a library.
func IsLibrary(root string) bool {
	info, err := os.Stat(LibraryPath(root))
	return err == nil && info.IsDir()
}

// FindLibrary walks up from the given path to find a library.
// Returns the library root path or an error if not found.
func FindLibrary(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsLibrary(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("not in a plib library (no %s directory found)", LibraryDir)
		}
		abs = parent
	}
}

// Load reads configuration from the library at the given root.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the library at the given root.
func (c *Config) Save(root string) error {
	if err := os.MkdirAll(LibraryPath(root), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", LibraryDir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks the library configuration values.
func (c *Config) Validate() error {
	switch c.Layout {
	case "", LayoutTitle, LayoutID:
	default:
		return fmt.Errorf("invalid layout: %s (valid: %s, %s)", c.Layout, LayoutTitle, LayoutID)
	}
	return ValidatePDFReader(c.PDFReader)
}

// ValidatePDFReader checks that the reader value is valid.
func ValidatePDFReader(reader string) error {
	if reader == "" {
		return nil // Empty defaults to "system"
	}

	for _, valid := range ValidReaders {
		if reader == valid {
			return nil
		}
	}

	return fmt.Errorf("invalid pdf_reader: %s (valid: %v)", reader, ValidReaders)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
