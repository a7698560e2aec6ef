package config

import (
	"errors"
	"fmt"
	"strings"
)

// Built-in provider names.
const (
	ProviderPDF             = "pdf"
	ProviderDOI             = "doi"
	ProviderArXiv           = "arxiv"
	ProviderDBLP            = "dblp"
	ProviderSemanticScholar = "semanticscholar"
	ProviderOpenReview      = "openreview"
)

// BuiltinProviders lists the provider names that need no kind.
var BuiltinProviders = []string{
	ProviderPDF, ProviderDOI, ProviderArXiv, ProviderDBLP, ProviderSemanticScholar, ProviderOpenReview,
}

// KindCustom marks a user-defined provider driven entirely by its options.
const KindCustom = "custom"

// CustomFieldNames are the draft fields a custom provider may map.
var CustomFieldNames = []string{"title", "venue", "abstract", "year", "authors", "doi", "arxiv"}

// ErrInvalidProvider is returned for malformed provider entries.
var ErrInvalidProvider = errors.New("invalid provider configuration")

// ProviderConfig is one metadata source entry. Sources run in ascending
// priority order and later sources overwrite fields set by earlier ones, so
// the highest priority has the last word.
type ProviderConfig struct {
	Name     string         `yaml:"name" json:"name"`
	Kind     string         `yaml:"kind,omitempty" json:"kind,omitempty"`
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Priority int            `yaml:"priority" json:"priority"`
	Options  ProviderParams `yaml:",inline" json:"options"`
}

// ProviderParams are the typed, source-specific options. Only custom
// providers use URLTemplate and Fields; every provider may set headers, an API
// key environment variable, and a rate limit.
type ProviderParams struct {
	URLTemplate string            `yaml:"url_template,omitempty" json:"url_template,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	APIKeyEnv   string            `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	Fields      map[string]string `yaml:"fields,omitempty" json:"fields,omitempty"`         // draft field -> dotted JSON path
	RateLimit   float64           `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"` // requests per second, 0 = default
}

// IsBuiltin reports whether the entry names a built-in provider.
func (p ProviderConfig) IsBuiltin() bool {
	return p.Kind == "" && isBuiltinName(p.Name)
}

// DefaultProviders returns the provider list used when none is configured.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Name: ProviderPDF, Enabled: true, Priority: 10},
		{Name: ProviderArXiv, Enabled: true, Priority: 20},
		{Name: ProviderDOI, Enabled: true, Priority: 30},
		{Name: ProviderDBLP, Enabled: true, Priority: 40},
		{Name: ProviderSemanticScholar, Enabled: true, Priority: 50, Options: ProviderParams{APIKeyEnv: "S2_API_KEY", RateLimit: 1}},
		{Name: ProviderOpenReview, Enabled: false, Priority: 60},
	}
}

// ValidateProviders checks names are unique and every entry is either a
// built-in provider or a complete custom one.
func ValidateProviders(providers []ProviderConfig) error {
	seen := make(map[string]bool, len(providers))
	for i, p := range providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("%w: entry %d has no name", ErrInvalidProvider, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate provider %q", ErrInvalidProvider, name)
		}
		seen[name] = true

		if err := validateProvider(p); err != nil {
			return err
		}
	}
	return nil
}

func validateProvider(p ProviderConfig) error {
	if p.Options.RateLimit < 0 {
		return fmt.Errorf("%w: %s: rate_limit must be >= 0", ErrInvalidProvider, p.Name)
	}

	switch p.Kind {
	case "":
		if !isBuiltinName(p.Name) {
			return fmt.Errorf("%w: unknown provider %q (built-in: %s; set kind: custom for your own)",
				ErrInvalidProvider, p.Name, strings.Join(BuiltinProviders, ", "))
		}
		if p.Options.URLTemplate != "" || len(p.Options.Fields) > 0 {
			return fmt.Errorf("%w: %s: url_template and fields are only valid for custom providers", ErrInvalidProvider, p.Name)
		}
	case KindCustom:
		if isBuiltinName(p.Name) {
			return fmt.Errorf("%w: custom provider may not reuse built-in name %q", ErrInvalidProvider, p.Name)
		}
		if p.Options.URLTemplate == "" {
			return fmt.Errorf("%w: %s: custom provider needs url_template", ErrInvalidProvider, p.Name)
		}
		if len(p.Options.Fields) == 0 {
			return fmt.Errorf("%w: %s: custom provider needs at least one field mapping", ErrInvalidProvider, p.Name)
		}
		for field := range p.Options.Fields {
			if !contains(CustomFieldNames, field) {
				return fmt.Errorf("%w: %s: unknown field %q (valid: %s)",
					ErrInvalidProvider, p.Name, field, strings.Join(CustomFieldNames, ", "))
			}
		}
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidProvider, p.Name, p.Kind)
	}
	return nil
}

func isBuiltinName(name string) bool {
	return contains(BuiltinProviders, name)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
