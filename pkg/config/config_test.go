package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/depcheck/pkg/errors"
)

func noEnv(string) string { return "" }

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, Filename), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir, noEnv)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("Path = %q, want empty without a file", cfg.Path)
	}
	if cfg.Manifest != filepath.Join(dir, "package.json") {
		t.Errorf("Manifest = %q", cfg.Manifest)
	}
	if cfg.Caveats != filepath.Join(dir, "dependency-caveats.json") {
		t.Errorf("Caveats = %q", cfg.Caveats)
	}
	if cfg.Registry != "https://registry.npmjs.org" {
		t.Errorf("Registry = %q", cfg.Registry)
	}
	if cfg.Timeout != 10*time.Second || cfg.CacheTTL != time.Hour {
		t.Errorf("Timeout = %s, CacheTTL = %s", cfg.Timeout, cfg.CacheTTL)
	}
	if cfg.Concurrency != 8 || cfg.SkipEnv != "TRAVIS_PULL_REQUEST" || cfg.Server.Addr != ":8080" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
manifest = "web/package.json"
caveats = "/etc/depcheck/caveats.yaml"
registry = "https://npm.internal.example.com"
timeout = "6s"
cache_ttl = "15m"
concurrency = 4
skip_env = "CI_PULL_REQUEST"

[cache]
redis_url = "redis://localhost:6379/0"

[server]
addr = "127.0.0.1:9000"
report_ttl = "30s"
`)

	cfg, err := Load(dir, noEnv)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Path != filepath.Join(dir, Filename) {
		t.Errorf("Path = %q", cfg.Path)
	}
	if cfg.Manifest != filepath.Join(dir, "web", "package.json") {
		t.Errorf("Manifest = %q", cfg.Manifest)
	}
	if cfg.Caveats != "/etc/depcheck/caveats.yaml" {
		t.Errorf("Caveats = %q", cfg.Caveats)
	}
	if cfg.Timeout != 6*time.Second || cfg.CacheTTL != 15*time.Minute {
		t.Errorf("Timeout = %s, CacheTTL = %s", cfg.Timeout, cfg.CacheTTL)
	}
	if cfg.Concurrency != 4 || cfg.SkipEnv != "CI_PULL_REQUEST" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Cache.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.Cache.RedisURL)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.Server.ReportTTL != 30*time.Second {
		t.Errorf("Server = %+v", cfg.Server)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `registry = "https://npm.internal.example.com"`)

	env := map[string]string{
		EnvRegistry: "https://registry.yarnpkg.com",
		EnvTimeout:  "3s",
	}
	cfg, err := Load(dir, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Registry != "https://registry.yarnpkg.com" {
		t.Errorf("Registry = %q, env should win over file", cfg.Registry)
	}
	if cfg.Timeout != 3*time.Second {
		t.Errorf("Timeout = %s", cfg.Timeout)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{"malformed toml", `timeout = `, nil},
		{"unknown key", `registy = "https://registry.npmjs.org"`, nil},
		{"bad duration", `timeout = "soon"`, nil},
		{"ftp registry", `registry = "ftp://registry.example.com"`, nil},
		{"zero timeout", `timeout = "0s"`, nil},
		{"zero concurrency", `concurrency = 0`, nil},
		{"bad env timeout", ``, map[string]string{EnvTimeout: "forever"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)

			_, err := Load(dir, func(k string) string { return tt.env[k] })
			if !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("Load() error = %v, want INVALID_CONFIG", err)
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error: %v", err)
	}
}
