// Package config loads the booksearch configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/bookshard/internal/query"
	"github.com/dreamware/bookshard/internal/storage"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "booksearch.yaml"

// Environment variables that override file values.
const (
	EnvRoot     = "BOOKSEARCH_ROOT"
	EnvAddr     = "BOOKSEARCH_ADDR"
	EnvDriver   = "BOOKSEARCH_DRIVER"
	EnvLogLevel = "BOOKSEARCH_LOG_LEVEL"
)

// Config holds all booksearch configuration.
type Config struct {
	Library LibraryConfig `yaml:"library"`
	Search  SearchConfig  `yaml:"search"`
	Server  ServerConfig  `yaml:"server"`
	Health  HealthConfig  `yaml:"health"`
	Logging LoggingConfig `yaml:"logging"`
}

// LibraryConfig locates the shard files and says how to open them.
type LibraryConfig struct {
	Root        string   `yaml:"root"`
	Extension   string   `yaml:"extension"`
	Driver      string   `yaml:"driver"`
	BusyTimeout string   `yaml:"busy_timeout"`
	Connect     []string `yaml:"connect,omitempty"` // Shards connected at startup; empty means all found
	Watch       bool     `yaml:"watch"`
}

// SearchConfig tunes the fan-out.
type SearchConfig struct {
	PageSize       int    `yaml:"page_size"`
	DefaultField   string `yaml:"default_field"`
	MaxConcurrency int    `yaml:"max_concurrency"` // 0 = unbounded
	Timeout        string `yaml:"timeout"`         // "" or "0" = none
	CacheTTL       string `yaml:"cache_ttl"`       // "" or "0" = no cache
	CacheEntries   int    `yaml:"cache_entries"`
}

// ServerConfig configures the JSON API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// HealthConfig configures the shard health monitor.
type HealthConfig struct {
	Interval    string `yaml:"interval"` // "" or "0" disables monitoring
	MaxFailures int    `yaml:"max_failures"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Library: LibraryConfig{
			Root:        ".",
			Extension:   ".db",
			Driver:      storage.DriverModernc,
			BusyTimeout: "5s",
			Watch:       true,
		},
		Search: SearchConfig{
			PageSize:     20,
			DefaultField: string(query.FieldTitle),
			Timeout:      "30s",
			CacheTTL:     "0",
			CacheEntries: 1024,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Health: HealthConfig{
			Interval:    "30s",
			MaxFailures: 3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error when path is DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if root := os.Getenv(EnvRoot); root != "" {
		c.Library.Root = root
	}
	if addr := os.Getenv(EnvAddr); addr != "" {
		c.Server.Addr = addr
	}
	if driver := os.Getenv(EnvDriver); driver != "" {
		c.Library.Driver = driver
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Library.Root) == "" {
		errs = append(errs, errors.New("library.root is required"))
	}
	if !strings.HasPrefix(c.Library.Extension, ".") {
		errs = append(errs, fmt.Errorf("library.extension %q must start with a dot", c.Library.Extension))
	}
	switch c.Library.Driver {
	case storage.DriverModernc, storage.DriverMattn:
	default:
		errs = append(errs, fmt.Errorf("library.driver %q must be %q or %q",
			c.Library.Driver, storage.DriverModernc, storage.DriverMattn))
	}
	if c.Search.PageSize < 1 {
		errs = append(errs, fmt.Errorf("search.page_size must be >= 1, got %d", c.Search.PageSize))
	}
	if c.Search.DefaultField != "" {
		if _, err := query.ParseField(c.Search.DefaultField); err != nil {
			errs = append(errs, fmt.Errorf("search.default_field: %w", err))
		}
	}
	if c.Search.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("search.max_concurrency must be >= 0, got %d", c.Search.MaxConcurrency))
	}
	if c.Health.MaxFailures < 1 {
		errs = append(errs, fmt.Errorf("health.max_failures must be >= 1, got %d", c.Health.MaxFailures))
	}

	durations := []struct {
		key   string
		value string
	}{
		{"library.busy_timeout", c.Library.BusyTimeout},
		{"search.timeout", c.Search.Timeout},
		{"search.cache_ttl", c.Search.CacheTTL},
		{"health.interval", c.Health.Interval},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
		}
	}

	return errors.Join(errs...)
}

// parseDuration accepts "" and "0" as zero and rejects negative values.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}

// GetBusyTimeout returns the SQLite busy timeout.
func (c *Config) GetBusyTimeout() time.Duration {
	d, _ := parseDuration(c.Library.BusyTimeout)
	return d
}

// GetSearchTimeout returns the per-search deadline, zero for none.
func (c *Config) GetSearchTimeout() time.Duration {
	d, _ := parseDuration(c.Search.Timeout)
	return d
}

// GetCacheTTL returns the result cache TTL, zero when caching is off.
func (c *Config) GetCacheTTL() time.Duration {
	d, _ := parseDuration(c.Search.CacheTTL)
	return d
}

// GetHealthInterval returns the health check interval, zero when disabled.
func (c *Config) GetHealthInterval() time.Duration {
	d, _ := parseDuration(c.Health.Interval)
	return d
}
