// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DADDYLIVE_DATA_DIR", t.TempDir())

	cfg, err := NewLoader("", "test-version").Load()
	require.NoError(t, err)

	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "https://dlhd.dad/", cfg.Origin.SiteRoot)
	assert.Equal(t, 4, cfg.Fetch.Attempts)
	assert.Equal(t, 2, cfg.Resolve.HopLimit)
	assert.Equal(t, 8, cfg.Resolve.Concurrency)
	assert.Len(t, cfg.Resolve.Templates, 4)
	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.True(t, filepath.IsAbs(cfg.Cache.Path))
	assert.Equal(t, filepath.Join(cfg.DataDir, "out.m3u8"), cfg.Playlist.Path)
}

func TestLoadFromYAML(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
dataDir: `+dataDir+`
origin:
  siteRoot: https://mirror.example/
fetch:
  attempts: 2
  backoff: 250ms
  insecureHosts: [mirror.example]
resolve:
  templates:
    - embed/{id}
  hopLimit: 1
  concurrency: 3
catalog:
  channels: [ESPN, TNT]
  logoOverrides:
    Local: countries/united-states/local.png
playlist:
  path: /srv/iptv/list.m3u8
`)

	cfg, err := NewLoader(path, "v").Load()
	require.NoError(t, err)

	assert.Equal(t, "https://mirror.example/", cfg.Origin.SiteRoot)
	assert.Equal(t, 2, cfg.Fetch.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.Backoff)
	assert.Equal(t, 8*time.Second, cfg.Fetch.MaxBackoff, "unset fields keep defaults")
	if diff := cmp.Diff([]string{"embed/{id}"}, cfg.Resolve.Templates); diff != "" {
		t.Errorf("templates mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"ESPN", "TNT"}, cfg.Catalog.Channels)
	assert.Equal(t, "countries/united-states/local.png", cfg.Catalog.LogoOverrides["Local"])
	assert.Contains(t, cfg.Catalog.LogoOverrides, "ESPN", "overrides merge with defaults")
	assert.Equal(t, "/srv/iptv/list.m3u8", cfg.Playlist.Path)
	assert.Equal(t, filepath.Join(dataDir, "stream_cache.json"), cfg.Cache.Path)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
dataDir: `+t.TempDir()+`
resolve:
  concurrency: 3
`)
	t.Setenv("DADDYLIVE_CONCURRENCY", "12")
	t.Setenv("CHANNELS", " ESPN , ,FOX Sports 1 ")
	t.Setenv("DADDYLIVE_CACHE_BACKEND", "MEMORY")
	t.Setenv("DADDYLIVE_FETCH_TIMEOUT", "not-a-duration")

	loader := NewLoader(path, "v")
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Resolve.Concurrency)
	assert.Equal(t, []string{"ESPN", "FOX Sports 1"}, cfg.Catalog.Channels)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout, "invalid env value falls back")
	assert.Contains(t, loader.EnvKeys(), "CHANNELS")
}

func TestLoadStrictRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
resolve:
  hopLimits: 3
`)
	_, err := NewLoader(path, "v").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hopLimits")
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n---\nlog:\n  level: info\n")
	_, err := NewLoader(path, "v").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestLoadEmptyFile(t *testing.T) {
	t.Setenv("DADDYLIVE_DATA_DIR", t.TempDir())
	path := writeConfig(t, "")
	cfg, err := NewLoader(path, "v").Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Fetch.Attempts)
}

func TestLoadRejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "v").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only YAML")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"template without placeholder", func(c *Config) { c.Resolve.Templates = []string{"stream/static.php"} }, "placeholder"},
		{"no templates", func(c *Config) { c.Resolve.Templates = nil }, "must not be empty"},
		{"bad site root", func(c *Config) { c.Origin.SiteRoot = "ftp://x/" }, "origin.siteRoot"},
		{"negative hop limit", func(c *Config) { c.Resolve.HopLimit = -1 }, "hopLimit"},
		{"zero concurrency", func(c *Config) { c.Resolve.Concurrency = 0 }, "concurrency"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "etcd" }, "cache.backend"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis"; c.Cache.Redis.Addr = "" }, "redis.addr"},
		{"memory without path", func(c *Config) { c.Cache.Backend = "memory"; c.Cache.Path = "" }, ""},
		{"threshold too high", func(c *Config) { c.Fetch.BlockThreshold = 1.5 }, "blockThreshold"},
		{"bad exporter", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, "exporter"},
		{"hop limit zero is allowed", func(c *Config) { c.Resolve.HopLimit = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Resolve.Concurrency = 0
	cfg.Fetch.Attempts = 0
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "attempts")
}

func TestDefaultsAreIndependentCopies(t *testing.T) {
	a := Defaults()
	a.Catalog.LogoOverrides["ESPN"] = "changed"
	a.Fetch.BlockPhrases[0] = "changed"

	b := Defaults()
	assert.Equal(t, "countries/united-states/espn.png", b.Catalog.LogoOverrides["ESPN"])
	assert.Equal(t, "just a moment", b.Fetch.BlockPhrases[0])
}
