// Package config provides configuration loading and management for the item browser.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/itembrowser/internal/items"
	"github.com/stacklok/itembrowser/internal/telemetry"
)

const (
	// DefaultEndpoint is the items API served by a local development backend
	DefaultEndpoint = "http://localhost:8000"

	// DefaultStateDir holds the stored location and the TUI log file
	DefaultStateDir = "~/.itembrowser"

	// DefaultLogLevel is used when no level is configured
	DefaultLogLevel = "info"
)

// Log output formats
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
	LogFormatTint = "tint"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		expanded, err := homedir.Expand(path)
		if err != nil {
			return fmt.Errorf("failed to expand path: %w", err)
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(expanded)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	API APIConfig `yaml:"api"`

	// Groups lists the record groups offered by the group filter.
	// Defaults to Primary and Secondary.
	Groups []string `yaml:"groups,omitempty"`

	State     StateConfig       `yaml:"state"`
	Web       *WebConfig        `yaml:"web,omitempty"`
	Logging   LoggingConfig     `yaml:"logging"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// APIConfig defines how the items API is reached
type APIConfig struct {
	// Endpoint is the base URL of the backend (scheme and host)
	Endpoint string `yaml:"endpoint"`

	// ItemsPath is the path of the items collection, "/api/v1/items/" by default
	ItemsPath string `yaml:"itemsPath,omitempty"`

	// Timeout bounds a single request (e.g. "10s")
	Timeout string `yaml:"timeout,omitempty"`

	Retry   *RetryConfig   `yaml:"retry,omitempty"`
	Breaker *BreakerConfig `yaml:"breaker,omitempty"`
}

// RetryConfig defines retries of idempotent requests
type RetryConfig struct {
	// MaxTries is the number of attempts including the first; 1 disables retries
	MaxTries uint `yaml:"maxTries"`

	// InitialInterval is the first backoff delay (e.g. "200ms")
	InitialInterval string `yaml:"initialInterval,omitempty"`
}

// BreakerConfig defines the circuit breaker around the items API
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"maxFailures"`
	OpenTimeout string `yaml:"openTimeout,omitempty"`
}

// StateConfig defines where local state is kept
type StateConfig struct {
	// Dir holds location.json and the TUI log; "~" is expanded
	Dir string `yaml:"dir,omitempty"`

	// Disabled keeps the location in memory only
	Disabled bool `yaml:"disabled,omitempty"`
}

// WebConfig points at the web UI that understands the same location strings
type WebConfig struct {
	BaseURL string `yaml:"baseURL"`
}

// LoggingConfig defines log level and output format
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads and parses configuration from a YAML file. Without a
// path the defaults are returned.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.API.Endpoint == "" {
		c.API.Endpoint = DefaultEndpoint
	}
	if c.API.ItemsPath == "" {
		c.API.ItemsPath = items.DefaultItemsPath
	}
	if len(c.Groups) == 0 {
		c.Groups = slices.Clone(items.DefaultGroups)
	}
	if c.State.Dir == "" {
		c.State.Dir = DefaultStateDir
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatJSON
	}
}

// Validate performs validation on the configuration. It is called by
// LoadConfig and again after command-line overrides are applied.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateEndpoint(c.API.Endpoint, "api.endpoint"); err != nil {
		return err
	}
	if !strings.HasPrefix(c.API.ItemsPath, "/") {
		return fmt.Errorf("api.itemsPath: must start with '/'")
	}
	if err := validateDuration(c.API.Timeout, "api.timeout"); err != nil {
		return err
	}
	if c.API.Retry != nil {
		if c.API.Retry.MaxTries == 0 {
			return fmt.Errorf("api.retry.maxTries: must be at least 1")
		}
		if err := validateDuration(c.API.Retry.InitialInterval, "api.retry.initialInterval"); err != nil {
			return err
		}
	}
	if c.API.Breaker != nil {
		if c.API.Breaker.MaxFailures == 0 {
			return fmt.Errorf("api.breaker.maxFailures: must be at least 1")
		}
		if err := validateDuration(c.API.Breaker.OpenTimeout, "api.breaker.openTimeout"); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	for i, group := range c.Groups {
		if strings.TrimSpace(group) == "" {
			return fmt.Errorf("groups[%d]: name is required", i)
		}
		if seen[group] {
			return fmt.Errorf("groups[%d]: duplicate group '%s'", i, group)
		}
		seen[group] = true
	}

	if c.Web != nil && c.Web.BaseURL != "" {
		if err := validateEndpoint(c.Web.BaseURL, "web.baseURL"); err != nil {
			return err
		}
	}

	switch c.Logging.Format {
	case LogFormatJSON, LogFormatText, LogFormatTint:
	default:
		return fmt.Errorf("logging.format: must be one of json, text, tint, got '%s'", c.Logging.Format)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func validateEndpoint(endpoint, prefix string) error {
	if endpoint == "" {
		return fmt.Errorf("%s: is required", prefix)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%s: invalid URL: %w", prefix, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https", prefix)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: host is required", prefix)
	}
	return nil
}

func validateDuration(value, prefix string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration format '%s': %w", prefix, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: must be positive", prefix)
	}
	return nil
}

// GetTimeout returns the request timeout, or zero for the client default
func (a *APIConfig) GetTimeout() time.Duration {
	return parseDuration(a.Timeout)
}

// GetMaxTries returns the configured attempts, or zero for the client default
func (a *APIConfig) GetMaxTries() uint {
	if a.Retry == nil {
		return 0
	}
	return a.Retry.MaxTries
}

// GetRetryInterval returns the initial backoff, or zero for the client default
func (a *APIConfig) GetRetryInterval() time.Duration {
	if a.Retry == nil {
		return 0
	}
	return parseDuration(a.Retry.InitialInterval)
}

// GetBreaker returns the breaker threshold and open timeout; zero values mean
// the client defaults.
func (a *APIConfig) GetBreaker() (uint32, time.Duration) {
	if a.Breaker == nil {
		return 0, 0
	}
	return a.Breaker.MaxFailures, parseDuration(a.Breaker.OpenTimeout)
}

// StateDir returns the state directory with "~" expanded
func (c *Config) StateDir() (string, error) {
	dir, err := homedir.Expand(c.State.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand state directory: %w", err)
	}
	return dir, nil
}

// WebBaseURL returns the web UI base URL, or "" when none is configured
func (c *Config) WebBaseURL() string {
	if c.Web == nil {
		return ""
	}
	return strings.TrimRight(c.Web.BaseURL, "/")
}

// parseDuration parses a duration validated by Validate
func parseDuration(value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
