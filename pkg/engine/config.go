package engine

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/probeworks/sitescan/internal/extract"
)

// Config is the immutable per-scan input.
type Config struct {
	// URL is the crawl seed.
	URL string `json:"url" yaml:"url"`

	// Login credentials; the authentication preamble runs only when
	// LoginURL, Username, and Password are all set.
	LoginURL string `json:"loginUrl" yaml:"loginUrl"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`

	// UsernameField and PasswordField override login form auto-detection.
	UsernameField string `json:"usernameField" yaml:"usernameField"`
	PasswordField string `json:"passwordField" yaml:"passwordField"`

	// Links discovered at depth >= MaxDepth are not enqueued.
	MaxDepth int `json:"maxDepth" yaml:"maxDepth"`

	// MaxPages caps the number of recorded results.
	MaxPages int `json:"maxPages" yaml:"maxPages"`

	// TimeoutMs is the per-request and per-navigation deadline.
	TimeoutMs int `json:"timeoutMs" yaml:"timeoutMs"`

	// MaxConcurrent bounds the number of in-flight workers.
	MaxConcurrent int `json:"maxConcurrent" yaml:"maxConcurrent"`

	// CustomHeaders are merged over the default browser-like headers;
	// custom wins.
	CustomHeaders map[string]string `json:"customHeaders" yaml:"customHeaders"`

	// PathRegexFilter is a case-insensitive pattern applied to URL paths.
	// Empty matches everything; an invalid pattern matches nothing.
	PathRegexFilter string `json:"pathRegexFilter" yaml:"pathRegexFilter"`

	// UseHeadlessBrowser selects the Rich fetch strategy; it silently
	// downgrades to Lite when the browser fails to launch.
	UseHeadlessBrowser bool `json:"useHeadlessBrowser" yaml:"useHeadlessBrowser"`

	// ScanID identifies the session; generated when absent.
	ScanID string `json:"scanId" yaml:"scanId"`

	// Link-extraction toggles, each gating one extraction rule family.
	IncludeDataAttributes      bool `json:"includeDataAttributes" yaml:"includeDataAttributes"`
	IncludeOnClick             bool `json:"includeOnClick" yaml:"includeOnClick"`
	IncludeForms               bool `json:"includeForms" yaml:"includeForms"`
	IncludeMetaRefresh         bool `json:"includeMetaRefresh" yaml:"includeMetaRefresh"`
	IncludeCanonical           bool `json:"includeCanonical" yaml:"includeCanonical"`
	IncludeInteractiveElements bool `json:"includeInteractiveElements" yaml:"includeInteractiveElements"`

	// ExcludeProtocols lists URL scheme prefixes that fail normalization.
	// Empty means the default set (javascript:, mailto:, tel:, data:, blob:).
	ExcludeProtocols []string `json:"excludeProtocols" yaml:"excludeProtocols"`

	// MaxLogEntries is the log ring-buffer capacity.
	MaxLogEntries int `json:"maxLogEntries" yaml:"maxLogEntries"`

	// LogRetentionMinutes is the post-crawl session store TTL.
	LogRetentionMinutes int `json:"logRetentionMinutes" yaml:"logRetentionMinutes"`

	// DynamicContentWaitMs is the settle delay after navigation (Rich only).
	DynamicContentWaitMs int `json:"dynamicContentWaitMs" yaml:"dynamicContentWaitMs"`

	// DetectSoftErrors rewrites 200 statuses when the body reads like an
	// error page.
	DetectSoftErrors bool `json:"detectSoftErrors" yaml:"detectSoftErrors"`

	// RequestsPerSecond rate-limits the Lite fetcher; 0 means unlimited.
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requestsPerSecond"`

	// ArchivePath, when set, stores the completed-scan summary in a
	// BoltDB file at this path.
	ArchivePath string `json:"archivePath" yaml:"archivePath"`

	// Verbose enables debug-level process logging.
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:                   5,
		MaxPages:                   500,
		TimeoutMs:                  10000,
		MaxConcurrent:              5,
		MaxLogEntries:              1000,
		LogRetentionMinutes:        5,
		DynamicContentWaitMs:       1800,
		DetectSoftErrors:           true,
		IncludeDataAttributes:      true,
		IncludeOnClick:             true,
		IncludeForms:               true,
		IncludeMetaRefresh:         true,
		IncludeCanonical:           true,
		IncludeInteractiveElements: true,
	}
}

// LoadFromFile loads a configuration file, trying YAML first and then JSON,
// overlaying the defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks the configuration before any scan state is allocated.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("seed URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("parse seed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("seed URL must be http or https, got %q", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("seed URL has no host: %q", c.URL)
	}
	if c.MaxDepth < 0 || c.MaxPages < 0 || c.MaxConcurrent < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	if c.TimeoutMs < 0 || c.RequestsPerSecond < 0 {
		return fmt.Errorf("timeouts and rates must not be negative")
	}
	return nil
}

// normalized fills zero-valued fields with the engine defaults and assigns a
// scan id when absent.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxDepth == 0 {
		c.MaxDepth = def.MaxDepth
	}
	if c.MaxPages == 0 {
		c.MaxPages = def.MaxPages
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = def.TimeoutMs
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.MaxLogEntries == 0 {
		c.MaxLogEntries = def.MaxLogEntries
	}
	if c.LogRetentionMinutes == 0 {
		c.LogRetentionMinutes = def.LogRetentionMinutes
	}
	if c.DynamicContentWaitMs == 0 {
		c.DynamicContentWaitMs = def.DynamicContentWaitMs
	}
	if c.ScanID == "" {
		c.ScanID = uuid.New().String()
	}
	return c
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c Config) dynamicContentWait() time.Duration {
	return time.Duration(c.DynamicContentWaitMs) * time.Millisecond
}

func (c Config) retention() time.Duration {
	return time.Duration(c.LogRetentionMinutes) * time.Minute
}

func (c Config) extractOptions() extract.Options {
	return extract.Options{
		IncludeDataAttributes:      c.IncludeDataAttributes,
		IncludeOnClick:             c.IncludeOnClick,
		IncludeForms:               c.IncludeForms,
		IncludeMetaRefresh:         c.IncludeMetaRefresh,
		IncludeCanonical:           c.IncludeCanonical,
		IncludeInteractiveElements: c.IncludeInteractiveElements,
	}
}
