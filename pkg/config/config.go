// Package config loads depcheck settings from .depcheck.toml.
//
// Every field is optional. Values are resolved in this order, later
// sources winning: built-in defaults, the config file, environment
// variables (DEPCHECK_REGISTRY, DEPCHECK_TIMEOUT), then command-line flags
// applied by the caller.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/depcheck/pkg/caveat"
	"github.com/matzehuels/depcheck/pkg/errors"
	"github.com/matzehuels/depcheck/pkg/freshness"
	"github.com/matzehuels/depcheck/pkg/integrations/npm"
	"github.com/matzehuels/depcheck/pkg/manifest"
	"github.com/matzehuels/depcheck/pkg/resolver"
)

// Filename is the config file looked up in the project root.
const Filename = ".depcheck.toml"

// Environment variables that override file values.
const (
	EnvRegistry = "DEPCHECK_REGISTRY"
	EnvTimeout  = "DEPCHECK_TIMEOUT"
)

// Default values.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultCacheTTL   = time.Hour
	DefaultReportTTL  = time.Minute
	DefaultServerAddr = ":8080"
)

// Config holds the resolved settings.
type Config struct {
	Manifest    string        `toml:"manifest"`
	Caveats     string        `toml:"caveats"`
	Registry    string        `toml:"registry"`
	Timeout     time.Duration `toml:"timeout"`
	CacheTTL    time.Duration `toml:"cache_ttl"`
	Concurrency int           `toml:"concurrency"`
	SkipEnv     string        `toml:"skip_env"`

	Cache  CacheConfig  `toml:"cache"`
	Server ServerConfig `toml:"server"`

	// Path is the file the config was read from, empty when no file exists.
	Path string `toml:"-"`
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	// RedisURL switches from the file cache to Redis when set.
	RedisURL string `toml:"redis_url"`
}

// ServerConfig configures depcheck serve.
type ServerConfig struct {
	Addr      string        `toml:"addr"`
	ReportTTL time.Duration `toml:"report_ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Manifest:    manifest.Filename,
		Caveats:     caveat.DefaultFilename,
		Registry:    npm.DefaultRegistry,
		Timeout:     DefaultTimeout,
		CacheTTL:    DefaultCacheTTL,
		Concurrency: resolver.DefaultConcurrency,
		SkipEnv:     freshness.DefaultSkipEnv,
		Server: ServerConfig{
			Addr:      DefaultServerAddr,
			ReportTTL: DefaultReportTTL,
		},
	}
}

// Load reads Filename from dir on top of the defaults and applies
// environment overrides. A missing file is not an error.
func Load(dir string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(dir, Filename)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
		}
		cfg.Path = path
	case !os.IsNotExist(err):
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.resolvePaths(dir)
	return cfg, cfg.Validate()
}

func (c *Config) decode(data []byte) error {
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown key %q", undecoded[0].String())
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	if v := getenv(EnvRegistry); v != "" {
		c.Registry = v
	}
	if v := getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s", EnvTimeout)
		}
		c.Timeout = d
	}
	return nil
}

// resolvePaths makes relative manifest and caveat paths relative to dir.
func (c *Config) resolvePaths(dir string) {
	if c.Manifest != "" && !filepath.IsAbs(c.Manifest) {
		c.Manifest = filepath.Join(dir, c.Manifest)
	}
	if c.Caveats != "" && !filepath.IsAbs(c.Caveats) {
		c.Caveats = filepath.Join(dir, c.Caveats)
	}
}

// Validate reports the first invalid setting as an INVALID_CONFIG error.
func (c *Config) Validate() error {
	if err := errors.ValidateURL(c.Registry); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "registry %q", c.Registry)
	}
	if c.Manifest == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "manifest path is empty")
	}
	if c.Timeout <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "timeout must be positive, got %s", c.Timeout)
	}
	if c.CacheTTL <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache_ttl must be positive, got %s", c.CacheTTL)
	}
	if c.Concurrency < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Server.ReportTTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "server.report_ttl must not be negative")
	}
	return nil
}
