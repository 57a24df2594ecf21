// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. configPath may be empty.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      strings.TrimSpace(configPath),
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path this loader reads, if any.
func (l *Loader) Path() string { return l.configPath }

// Load loads configuration: defaults, then the YAML file (strict), then the
// environment. The result is validated before it is returned.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.Cache.Path = cfg.ResolvePath(cfg.Cache.Path)
	cfg.Playlist.Path = cfg.ResolvePath(cfg.Playlist.Path)
	if cfg.Catalog.ChannelsFile != "" {
		cfg.Catalog.ChannelsFile = cfg.ResolvePath(cfg.Catalog.ChannelsFile)
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ResolvePath anchors relative paths in the data directory.
func (c Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) envString(key, def string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, def)
}

func (l *Loader) envInt(key string, def int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, def)
}

func (l *Loader) envInt64(key string, def int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, def)
}

func (l *Loader) envList(key string, def []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, def)
}

func (l *Loader) mergeEnv(cfg *Config) {
	cfg.DataDir = l.envString("DADDYLIVE_DATA_DIR", cfg.DataDir)
	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	cfg.Origin.SiteRoot = l.envString("DADDYLIVE_SITE_ROOT", cfg.Origin.SiteRoot)

	f := &cfg.Fetch
	f.Timeout = l.envDuration("DADDYLIVE_FETCH_TIMEOUT", f.Timeout)
	f.ConnectTimeout = l.envDuration("DADDYLIVE_FETCH_CONNECT_TIMEOUT", f.ConnectTimeout)
	f.Attempts = l.envInt("DADDYLIVE_FETCH_ATTEMPTS", f.Attempts)
	f.Backoff = l.envDuration("DADDYLIVE_FETCH_BACKOFF", f.Backoff)
	f.MaxBackoff = l.envDuration("DADDYLIVE_FETCH_MAX_BACKOFF", f.MaxBackoff)
	f.UserAgent = l.envString("DADDYLIVE_USER_AGENT", f.UserAgent)
	f.MaxBodyBytes = l.envInt64("DADDYLIVE_FETCH_MAX_BODY_BYTES", f.MaxBodyBytes)
	f.InsecureHosts = l.envList("DADDYLIVE_INSECURE_HOSTS", f.InsecureHosts)
	f.InsecureAllHosts = l.envBool("DADDYLIVE_INSECURE_ALL_HOSTS", f.InsecureAllHosts)
	f.RatePerHost = l.envFloat("DADDYLIVE_RATE_PER_HOST", f.RatePerHost)
	f.BurstPerHost = l.envInt("DADDYLIVE_BURST_PER_HOST", f.BurstPerHost)
	f.BlockMinBytes = l.envInt("DADDYLIVE_BLOCK_MIN_BYTES", f.BlockMinBytes)
	f.BlockPhrases = l.envList("DADDYLIVE_BLOCK_PHRASES", f.BlockPhrases)
	f.BlockThreshold = l.envFloat("DADDYLIVE_BLOCK_THRESHOLD", f.BlockThreshold)

	r := &cfg.Resolve
	r.Templates = l.envList("DADDYLIVE_TEMPLATES", r.Templates)
	r.HopLimit = l.envInt("DADDYLIVE_HOP_LIMIT", r.HopLimit)
	r.MaxFrames = l.envInt("DADDYLIVE_MAX_FRAMES", r.MaxFrames)
	r.Concurrency = l.envInt("DADDYLIVE_CONCURRENCY", r.Concurrency)
	r.Deadline = l.envDuration("DADDYLIVE_DEADLINE", r.Deadline)
	r.FallbackTemplate = l.envString("DADDYLIVE_FALLBACK_TEMPLATE", r.FallbackTemplate)

	c := &cfg.Cache
	c.Backend = strings.ToLower(l.envString("DADDYLIVE_CACHE_BACKEND", c.Backend))
	c.Path = l.envString("DADDYLIVE_CACHE_PATH", c.Path)
	c.Redis.Addr = l.envString("DADDYLIVE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = l.envString("DADDYLIVE_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = l.envInt("DADDYLIVE_REDIS_DB", c.Redis.DB)
	c.Redis.Key = l.envString("DADDYLIVE_REDIS_KEY", c.Redis.Key)

	cat := &cfg.Catalog
	cat.ChannelsURL = l.envString("DADDYLIVE_CHANNELS_URL", cat.ChannelsURL)
	cat.LogosURL = l.envString("DADDYLIVE_LOGOS_URL", cat.LogosURL)
	cat.LogoRawBase = l.envString("DADDYLIVE_LOGO_RAW_BASE", cat.LogoRawBase)
	cat.Channels = l.envList("CHANNELS", cat.Channels)
	cat.ChannelsFile = l.envString("DADDYLIVE_CHANNELS_FILE", cat.ChannelsFile)
	cat.TTL = l.envDuration("DADDYLIVE_CATALOG_TTL", cat.TTL)

	cfg.Playlist.Path = l.envString("DADDYLIVE_PLAYLIST_PATH", cfg.Playlist.Path)
	cfg.Playlist.Group = l.envString("DADDYLIVE_PLAYLIST_GROUP", cfg.Playlist.Group)

	s := &cfg.Server
	s.Listen = l.envString("DADDYLIVE_LISTEN", s.Listen)
	s.RefreshInterval = l.envDuration("DADDYLIVE_REFRESH_INTERVAL", s.RefreshInterval)
	s.Watch = l.envBool("DADDYLIVE_WATCH", s.Watch)
	s.RefreshRateLimit = l.envInt("DADDYLIVE_REFRESH_RATE_LIMIT", s.RefreshRateLimit)

	t := &cfg.Telemetry
	t.Enabled = l.envBool("DADDYLIVE_TRACING_ENABLED", t.Enabled)
	t.Exporter = l.envString("DADDYLIVE_TRACING_EXPORTER", t.Exporter)
	t.Endpoint = l.envString("DADDYLIVE_TRACING_ENDPOINT", t.Endpoint)
	t.SamplingRate = l.envFloat("DADDYLIVE_TRACING_SAMPLING_RATE", t.SamplingRate)
	t.Environment = l.envString("DADDYLIVE_TRACING_ENVIRONMENT", t.Environment)
}

// EnvKeys returns the sorted list of environment keys the loader consults.
func (l *Loader) EnvKeys() []string {
	keys := make([]string, 0, len(l.ConsumedEnvKeys))
	for k := range l.ConsumedEnvKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
