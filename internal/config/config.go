// Package config provides configuration loading and validation for the reader.
//
// Configuration can be provided via:
//   - Command line flags (highest priority)
//   - Environment variables (EPUBREAD_ prefix)
//   - Configuration file (YAML or JSON)
//
// Example:
//
//	listen: "127.0.0.1:8421"
//	cache:
//	  dir: "~/.cache/epubread"
//	links:
//	  match: "exact"
//	render:
//	  stylesheet: "/home/me/reader.css"
//	  cover_width: 400
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	MatchContains = "contains"
	MatchExact    = "exact"
)

// Config holds all configuration for the reader.
type Config struct {
	// Listen is the address the reading server binds to.
	Listen string `json:"listen" yaml:"listen"`

	// Cache configures where extracted books are kept.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Database configures reading-state persistence.
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Log configures logging.
	Log LogConfig `json:"log" yaml:"log"`

	// Links configures how clicked links are matched to chapters.
	Links LinksConfig `json:"links" yaml:"links"`

	// Render configures chapter and cover rendering.
	Render RenderConfig `json:"render" yaml:"render"`

	// Resume restores the saved position when a book is reopened.
	Resume bool `json:"resume" yaml:"resume"`
}

type CacheConfig struct {
	// Dir holds one extracted directory per book, named by content hash.
	Dir string `json:"dir" yaml:"dir"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file. Empty means state.db inside the
	// cache directory.
	Path string `json:"path" yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `json:"format" yaml:"format"`
}

type LinksConfig struct {
	// Match is "contains" (substring match against manifest hrefs) or
	// "exact" (cleaned path equality).
	Match string `json:"match" yaml:"match"`
}

type RenderConfig struct {
	// Stylesheet is a CSS file injected into every chapter. Empty uses the
	// built-in stylesheet.
	Stylesheet string `json:"stylesheet" yaml:"stylesheet"`

	// CoverWidth is the width in pixels of the cover thumbnail.
	CoverWidth int `json:"cover_width" yaml:"cover_width"`
}

// DefaultCacheDir returns the per-user cache directory for extracted books.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", "cache", "epubread")
	}
	return filepath.Join(dir, "epubread")
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: "127.0.0.1:8421",
		Cache: CacheConfig{
			Dir: DefaultCacheDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Links: LinksConfig{
			Match: MatchContains,
		},
		Render: RenderConfig{
			CoverWidth: 300,
		},
		Resume: true,
	}
}

// Load reads configuration from a file (YAML or JSON).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		// YAML is a superset of JSON for our purposes
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to a Config.
// Environment variables use the EPUBREAD_ prefix:
//   - EPUBREAD_LISTEN
//   - EPUBREAD_CACHE_DIR
//   - EPUBREAD_DATABASE_PATH
//   - EPUBREAD_LOG_LEVEL
//   - EPUBREAD_LOG_FORMAT
//   - EPUBREAD_LINKS_MATCH
//   - EPUBREAD_RENDER_STYLESHEET
//   - EPUBREAD_RENDER_COVER_WIDTH
//   - EPUBREAD_RESUME
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("EPUBREAD_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("EPUBREAD_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("EPUBREAD_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("EPUBREAD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("EPUBREAD_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("EPUBREAD_LINKS_MATCH"); v != "" {
		c.Links.Match = v
	}
	if v := os.Getenv("EPUBREAD_RENDER_STYLESHEET"); v != "" {
		c.Render.Stylesheet = v
	}
	if v := os.Getenv("EPUBREAD_RENDER_COVER_WIDTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EPUBREAD_RENDER_COVER_WIDTH: %w", err)
		}
		c.Render.CoverWidth = n
	}
	if v := os.Getenv("EPUBREAD_RESUME"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EPUBREAD_RESUME: %w", err)
		}
		c.Resume = b
	}
	return nil
}

// DatabasePath returns the configured database path, defaulting to
// state.db inside the cache directory.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Cache.Dir, "state.db")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", c.Log.Level)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.Log.Format)
	}

	switch c.Links.Match {
	case MatchContains, MatchExact:
	default:
		return fmt.Errorf("invalid links.match %q (must be %s or %s)", c.Links.Match, MatchContains, MatchExact)
	}

	if c.Render.CoverWidth <= 0 {
		return fmt.Errorf("render.cover_width must be positive, got %d", c.Render.CoverWidth)
	}
	if c.Render.Stylesheet != "" {
		if _, err := os.Stat(c.Render.Stylesheet); err != nil {
			return fmt.Errorf("render.stylesheet: %w", err)
		}
	}

	return nil
}
