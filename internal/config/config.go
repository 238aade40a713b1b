// Package config handles TOML-based configuration loading and validation.
// TOML is parsed as data only, so a config file can never execute anything.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	ProxyURL        string   `toml:"proxy_url"`
	Target          string   `toml:"target"`
	ConsistentIP    bool     `toml:"consistent_ip"`
	SourceOrder     []string `toml:"source_order"`
	EmbedOrder      []string `toml:"embed_order"`
	Disabled        []string `toml:"disabled"`
	IncludeExternal bool     `toml:"include_external"`
	Timeout         string   `toml:"timeout"`
	RequestTimeout  string   `toml:"request_timeout"`
	RateLimit       int      `toml:"rate_limit"`
	FlixHQBase      string   `toml:"flixhq_base"`
	ConsumetURL     string   `toml:"consumet_url"`
	TMDBAPIKey      string   `toml:"tmdb_api_key"`
	SubsLanguage    string   `toml:"subs_language"`

	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
}

// ServerConfig is the [server] table.
type ServerConfig struct {
	Listen string `toml:"listen"`
	// AllowPrivateUpstreams lets /api/proxy reach loopback and private
	// addresses. Off by default.
	AllowPrivateUpstreams bool `toml:"allow_private_upstreams"`
}

// LogConfig is the [log] table.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Target:         "any",
		Timeout:        "60s",
		RequestTimeout: "15s",
		FlixHQBase:     "flixhq.to",
		ConsumetURL:    "https://api.consumet.org",
		SubsLanguage:   "english",
		Server:         ServerConfig{Listen: "127.0.0.1:8080"},
		Log:            LogConfig{Level: "info", Format: "text"},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "streamscout"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "streamscout"), nil
}

// ConfigPath returns the path to the config file. STREAMSCOUT_CONFIG wins
// over the XDG location.
func ConfigPath() (string, error) {
	if p := os.Getenv("STREAMSCOUT_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path (ConfigPath when empty), merges it over
// the defaults and applies environment overrides. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TMDB_API_KEY"); v != "" {
		c.TMDBAPIKey = v
	}
	if v := os.Getenv("STREAMSCOUT_PROXY_URL"); v != "" {
		c.ProxyURL = v
	}
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	switch c.Target {
	case "", "any", "browser", "native":
	default:
		return fmt.Errorf("unsupported target %q (valid: any, browser, native)", c.Target)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}

	for name, v := range map[string]string{"timeout": c.Timeout, "request_timeout": c.RequestTimeout} {
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}

	if c.ProxyURL != "" {
		u, err := url.Parse(c.ProxyURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("proxy_url must be an absolute http(s) URL, got %q", c.ProxyURL)
		}
	}

	if c.FlixHQBase == "" {
		return fmt.Errorf("flixhq_base cannot be empty")
	}
	if strings.Contains(c.FlixHQBase, "/") {
		return fmt.Errorf("flixhq_base must be a host name, got %q", c.FlixHQBase)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json", "logfmt":
	default:
		return fmt.Errorf("unsupported log format %q (valid: text, json, logfmt)", c.Log.Format)
	}

	return nil
}

// RunTimeout is the overall deadline for one resolution; zero means none.
func (c *Config) RunTimeout() time.Duration {
	return parseDuration(c.Timeout)
}

// HTTPTimeout bounds every single request.
func (c *Config) HTTPTimeout() time.Duration {
	return parseDuration(c.RequestTimeout)
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
