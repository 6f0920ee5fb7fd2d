package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depcheck/pkg/cache"
	"github.com/matzehuels/depcheck/pkg/caveat"
	"github.com/matzehuels/depcheck/pkg/config"
	"github.com/matzehuels/depcheck/pkg/freshness"
	"github.com/matzehuels/depcheck/pkg/integrations/npm"
	"github.com/matzehuels/depcheck/pkg/manifest"
	"github.com/matzehuels/depcheck/pkg/resolver"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "depcheck"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// dir is the project root holding package.json and .depcheck.toml.
	dir string
	// getenv reads the environment; replaced in tests.
	getenv func(string) string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		dir:    ".",
		getenv: os.Getenv,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// =============================================================================
// Project Loading
// =============================================================================

// project is everything a check needs, loaded once per command.
type project struct {
	cfg      *config.Config
	manifest *manifest.Manifest
	caveats  *caveat.Table
}

// loadConfig reads the config of the project root. When dir holds no
// package.json the nearest parent that does is used instead.
func (c *CLI) loadConfig() (*config.Config, error) {
	return config.Load(c.projectDir(), c.getenv)
}

func (c *CLI) projectDir() string {
	if _, err := os.Stat(filepath.Join(c.dir, manifest.Filename)); err == nil {
		return c.dir
	}
	path, err := manifest.Find(c.dir)
	if err != nil {
		return c.dir
	}
	c.Logger.Debug("Using project root", "dir", filepath.Dir(path))
	return filepath.Dir(path)
}

// loadProject reads the manifest and caveat table named by cfg.
func (c *CLI) loadProject(cfg *config.Config) (*project, error) {
	m, err := manifest.Load(cfg.Manifest)
	if err != nil {
		return nil, err
	}
	caveats, err := caveat.LoadOptional(cfg.Caveats)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("Loaded project", "manifest", m.Path, "caveats", caveats.Len())
	return &project{cfg: cfg, manifest: m, caveats: caveats}, nil
}

// =============================================================================
// Checker Factory
// =============================================================================

// newChecker wires the registry resolver, caveat table and logger.
// Registry responses are cached in store.
func (c *CLI) newChecker(p *project, store cache.Cache) *freshness.Checker {
	client := npm.NewClient(store, p.cfg.Registry, p.cfg.CacheTTL)
	registry := resolver.NewRegistry(client, p.cfg.Concurrency)
	return freshness.NewChecker(registry, p.caveats, c.Logger)
}

func newCache(ctx context.Context, cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return rc, nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return nil, fmt.Errorf("open file cache: %w", err)
	}
	return fc, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/depcheck/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
