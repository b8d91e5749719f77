// Package config loads the postpilot YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/postpilot/pkg/browser"
	"github.com/entrhq/postpilot/pkg/logging"
	"github.com/entrhq/postpilot/pkg/media"
	"github.com/entrhq/postpilot/pkg/status"
	"github.com/entrhq/postpilot/pkg/workflow"
)

// Config represents the full postpilot configuration
type Config struct {
	// Site the posts are made on
	Site SiteConfig `yaml:"site" json:"site"`

	// Browser launch settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Workflow delays and timeouts
	Workflow workflow.Timings `yaml:"workflow" json:"workflow"`

	// Image loading limits
	Media MediaConfig `yaml:"media" json:"media"`

	// Operation record retention
	Status StatusConfig `yaml:"status" json:"status"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SiteConfig names the target site and the pages that may be reused.
type SiteConfig struct {
	TargetURL    string        `yaml:"target_url" json:"target_url"`
	PagePatterns []string      `yaml:"page_patterns" json:"page_patterns"`
	LoadTimeout  time.Duration `yaml:"load_timeout" json:"load_timeout"`
}

// BrowserConfig controls the Chromium instance.
type BrowserConfig struct {
	Headless    bool             `yaml:"headless" json:"headless"`
	UserDataDir string           `yaml:"user_data_dir" json:"user_data_dir"` // Profile kept between runs so the login survives
	Viewport    browser.Viewport `yaml:"viewport" json:"viewport"`
	Timeout     time.Duration    `yaml:"timeout" json:"timeout"`
	SkipInstall bool             `yaml:"skip_install" json:"skip_install"`
}

// MediaConfig limits what images may be loaded.
type MediaConfig struct {
	// AllowedDirs restricts local image paths; empty allows any path
	AllowedDirs []string `yaml:"allowed_dirs" json:"allowed_dirs"`
	MaxBytes    int64    `yaml:"max_bytes" json:"max_bytes"`
}

// StoreBackend selects where operation records are kept.
type StoreBackend string

const (
	// BackendMemory keeps records in process memory
	BackendMemory StoreBackend = "memory"
	// BackendRedis keeps records in Redis so other processes can query them
	BackendRedis StoreBackend = "redis"
)

// StatusConfig controls operation record retention.
type StatusConfig struct {
	Backend       StoreBackend       `yaml:"backend" json:"backend"`
	Retention     time.Duration      `yaml:"retention" json:"retention"`
	SweepInterval time.Duration      `yaml:"sweep_interval" json:"sweep_interval"`
	Redis         status.RedisConfig `yaml:"redis" json:"redis"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// DefaultConfig returns a configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			TargetURL: "https://www.instagram.com/",
			PagePatterns: []string{
				"https://www.instagram.com/*",
				"https://instagram.com/*",
			},
			LoadTimeout: 10 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:    false,
			UserDataDir: "~/.postpilot/profile",
			Viewport: browser.Viewport{
				Width:  browser.DefaultViewportWidth,
				Height: browser.DefaultViewportHeight,
			},
			Timeout: browser.DefaultTimeout,
		},
		Workflow: workflow.DefaultTimings(),
		Media: MediaConfig{
			MaxBytes: media.DefaultMaxBytes,
		},
		Status: StatusConfig{
			Backend:       BackendMemory,
			Retention:     status.DefaultRetention,
			SweepInterval: status.DefaultSweepInterval,
			Redis:         status.DefaultRedisConfig(),
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Site.TargetURL == "" {
		return fmt.Errorf("site.target_url is required")
	}
	if len(c.Site.PagePatterns) == 0 {
		return fmt.Errorf("site.page_patterns must name at least one pattern")
	}
	if _, err := browser.CompilePatterns(c.Site.PagePatterns); err != nil {
		return err
	}
	if c.Site.LoadTimeout <= 0 {
		return fmt.Errorf("site.load_timeout must be positive")
	}

	if c.Browser.Timeout < 0 {
		return fmt.Errorf("browser.timeout cannot be negative")
	}
	if c.Browser.Viewport.Width < 0 || c.Browser.Viewport.Height < 0 {
		return fmt.Errorf("browser.viewport cannot be negative")
	}

	if err := c.Workflow.Validate(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}

	if c.Media.MaxBytes <= 0 {
		return fmt.Errorf("media.max_bytes must be positive")
	}

	switch c.Status.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Status.Redis.Addr == "" {
			return fmt.Errorf("status.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid status backend: %s (must be 'memory' or 'redis')", c.Status.Backend)
	}
	if c.Status.Retention <= 0 {
		return fmt.Errorf("status.retention must be positive")
	}
	if c.Status.SweepInterval <= 0 {
		return fmt.Errorf("status.sweep_interval must be positive")
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	if _, err := logging.ParseVerbosity(c.Logging.Verbosity); err != nil {
		return fmt.Errorf("invalid logging verbosity: %w", err)
	}

	return nil
}

// BrowserOptions converts the browser section for browser.NewManager.
func (c *Config) BrowserOptions() browser.Options {
	vp := c.Browser.Viewport
	return browser.Options{
		Headless:    c.Browser.Headless,
		Viewport:    &vp,
		Timeout:     c.Browser.Timeout,
		UserDataDir: c.Browser.UserDataDir,
		SkipInstall: c.Browser.SkipInstall,
	}
}

// Loader builds the image loader the media section describes.
func (c *Config) Loader() (*media.Loader, error) {
	opts := []media.Option{media.WithMaxBytes(c.Media.MaxBytes)}
	if len(c.Media.AllowedDirs) > 0 {
		guard, err := media.NewPathGuard(c.Media.AllowedDirs...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, media.WithPathGuard(guard))
	}
	return media.NewLoader(opts...), nil
}

// DefaultPath returns ~/.postpilot/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".postpilot", "config.yaml"), nil
}

// Load reads path over DefaultConfig and validates the result. A missing
// file yields the defaults; fields absent from the file keep their default.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
