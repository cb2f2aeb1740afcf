package vendors

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Discovery methods selectable per vendor.
const (
	MethodSitemap    = "sitemap"
	MethodPagination = "pagination"
)

// Pagination styles selectable per vendor.
const (
	StyleOffset       = "offset"
	StylePageNumber   = "page-number"
	StylePathTemplate = "path-template"
)

// Profile is the immutable per-vendor configuration driving discovery
// and fetch behavior. One Profile per vendor per run.
type Profile struct {
	Name            string        `mapstructure:"name"`
	Enabled         bool          `mapstructure:"enabled"`
	Website         string        `mapstructure:"website"`
	DiscoveryMethod string        `mapstructure:"discovery_method"`
	LinkPatterns    []string      `mapstructure:"link_patterns"`
	ExcludePatterns []string      `mapstructure:"exclude_patterns"`
	Pagination      *Pagination   `mapstructure:"pagination"`
	Sitemap         *Sitemap      `mapstructure:"sitemap"`
	Fetch           FetchPolicy   `mapstructure:"fetch"`
	ErrorHandling   ErrorHandling `mapstructure:"error_handling"`
}

// Pagination configures listing-page address construction.
type Pagination struct {
	Style       string `mapstructure:"style"`
	BaseURL     string `mapstructure:"base_url"`
	PageParam   string `mapstructure:"page_param"`
	SizeParam   string `mapstructure:"size_param"`
	OffsetParam string `mapstructure:"offset_param"`
	PageSize    int    `mapstructure:"page_size"`
	StartIndex  int    `mapstructure:"start_index"`
	Template    string `mapstructure:"template"`
	MaxPages    int    `mapstructure:"max_pages"`
}

// Sitemap configures manifest discovery. All fields optional; the
// location defaults to <website>/sitemap.xml.
type Sitemap struct {
	URL string `mapstructure:"url"`
}

// FetchPolicy carries per-vendor fetch thresholds and politeness.
type FetchPolicy struct {
	ForceSecondary bool              `mapstructure:"force_secondary"`
	MinWordCount   int               `mapstructure:"min_word_count"`
	BlockMarkers   []string          `mapstructure:"block_markers"`
	Delay          time.Duration     `mapstructure:"delay"`
	RandomDelay    time.Duration     `mapstructure:"random_delay"`
	Headers        map[string]string `mapstructure:"headers"`
}

// ErrorHandling carries the per-vendor retry policy.
type ErrorHandling struct {
	RetryOnFailure bool `mapstructure:"retry_on_failure"`
	MaxRetries     int  `mapstructure:"max_retries"`
	SkipOnError    bool `mapstructure:"skip_on_error"`
}

// ConfigError marks a vendor profile as unusable. It aborts that
// vendor's run before any phase starts; other vendors are unaffected.
type ConfigError struct {
	Vendor string
	Field  string
	Msg    string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("vendor %q: %s", e.Vendor, e.Msg)
	}
	return fmt.Sprintf("vendor %q: %s: %s", e.Vendor, e.Field, e.Msg)
}

// SitemapURL returns the configured manifest location, or the
// conventional /sitemap.xml under the vendor website.
func (p *Profile) SitemapURL() string {
	if p.Sitemap != nil && p.Sitemap.URL != "" {
		return p.Sitemap.URL
	}
	return strings.TrimRight(p.Website, "/") + "/sitemap.xml"
}

// MinWords returns the vendor's quality threshold, falling back to def.
func (p *Profile) MinWords(def int) int {
	if p.Fetch.MinWordCount > 0 {
		return p.Fetch.MinWordCount
	}
	return def
}

// MaxAttempts returns the per-item fetch attempt budget.
func (p *Profile) MaxAttempts() int {
	if !p.ErrorHandling.RetryOnFailure {
		return 1
	}
	return 1 + p.ErrorHandling.MaxRetries
}

// Validate checks the profile for structural problems. All returned
// errors are ConfigErrors.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return &ConfigError{Vendor: p.Name, Field: "name", Msg: "required"}
	}
	if p.Website == "" {
		return &ConfigError{Vendor: p.Name, Field: "website", Msg: "required"}
	}
	u, err := url.Parse(p.Website)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ConfigError{Vendor: p.Name, Field: "website", Msg: "must be an absolute URL"}
	}
	switch p.DiscoveryMethod {
	case MethodSitemap:
	case MethodPagination:
		if p.Pagination == nil {
			return &ConfigError{Vendor: p.Name, Field: "pagination", Msg: "required for pagination discovery"}
		}
		if err := p.Pagination.validate(p.Name); err != nil {
			return err
		}
	case "":
		return &ConfigError{Vendor: p.Name, Field: "discovery_method", Msg: "required"}
	default:
		return &ConfigError{Vendor: p.Name, Field: "discovery_method", Msg: fmt.Sprintf("unknown method %q", p.DiscoveryMethod)}
	}
	return nil
}

func (pg *Pagination) validate(vendor string) error {
	switch pg.Style {
	case StyleOffset, StylePageNumber:
		if pg.BaseURL == "" {
			return &ConfigError{Vendor: vendor, Field: "pagination.base_url", Msg: "required"}
		}
		if _, err := url.Parse(pg.BaseURL); err != nil {
			return &ConfigError{Vendor: vendor, Field: "pagination.base_url", Msg: err.Error()}
		}
	case StylePathTemplate:
		if pg.Template == "" {
			return &ConfigError{Vendor: vendor, Field: "pagination.template", Msg: "required"}
		}
		if !strings.Contains(pg.Template, "{page}") {
			return &ConfigError{Vendor: vendor, Field: "pagination.template", Msg: "missing {page} placeholder"}
		}
	case "":
		return &ConfigError{Vendor: vendor, Field: "pagination.style", Msg: "required"}
	default:
		return &ConfigError{Vendor: vendor, Field: "pagination.style", Msg: fmt.Sprintf("unknown style %q", pg.Style)}
	}
	if pg.StartIndex != 0 && pg.StartIndex != 1 {
		return &ConfigError{Vendor: vendor, Field: "pagination.start_index", Msg: "must be 0 or 1"}
	}
	return nil
}
