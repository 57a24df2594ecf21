// SPDX-License-Identifier: MIT

// Package config loads the daddylive configuration from defaults, an optional
// YAML file and the environment.
package config

import "time"

// Config is the fully merged application configuration.
type Config struct {
	DataDir   string          `yaml:"dataDir"`
	Log       LogConfig       `yaml:"log"`
	Origin    OriginConfig    `yaml:"origin"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Resolve   ResolveConfig   `yaml:"resolve"`
	Cache     CacheConfig     `yaml:"cache"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Playlist  PlaylistConfig  `yaml:"playlist"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Version is the build version, set by the loader.
	Version string `yaml:"-"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// OriginConfig describes the site the streams are scraped from.
type OriginConfig struct {
	// SiteRoot is used as referer for player pages and as base for relative templates.
	SiteRoot string `yaml:"siteRoot"`
}

// FetchConfig tunes the resilient HTTP fetcher.
type FetchConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	Attempts       int           `yaml:"attempts"`
	Backoff        time.Duration `yaml:"backoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	UserAgent      string        `yaml:"userAgent"`
	MaxBodyBytes   int64         `yaml:"maxBodyBytes"`

	// InsecureHosts may be retried once without certificate validation.
	InsecureHosts    []string `yaml:"insecureHosts"`
	InsecureAllHosts bool     `yaml:"insecureAllHosts"`

	RatePerHost  float64 `yaml:"ratePerHost"`
	BurstPerHost int     `yaml:"burstPerHost"`

	BlockMinBytes  int      `yaml:"blockMinBytes"`
	BlockPhrases   []string `yaml:"blockPhrases"`
	BlockThreshold float64  `yaml:"blockThreshold"`
}

// ResolveConfig drives the resolution orchestrator and scheduler.
type ResolveConfig struct {
	Templates        []string      `yaml:"templates"`
	HopLimit         int           `yaml:"hopLimit"`
	MaxFrames        int           `yaml:"maxFrames"`
	Concurrency      int           `yaml:"concurrency"`
	Deadline         time.Duration `yaml:"deadline"`
	FallbackTemplate string        `yaml:"fallbackTemplate"`
}

// CacheConfig selects the resolution cache store.
type CacheConfig struct {
	// Backend is one of file, sqlite, redis, badger, memory.
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// CatalogConfig points at the channel list and logo sources.
type CatalogConfig struct {
	ChannelsURL   string            `yaml:"channelsURL"`
	LogosURL      string            `yaml:"logosURL"`
	LogoRawBase   string            `yaml:"logoRawBase"`
	LogoOverrides map[string]string `yaml:"logoOverrides"`
	Channels      []string          `yaml:"channels"`
	ChannelsFile  string            `yaml:"channelsFile"`
	TTL           time.Duration     `yaml:"ttl"`
}

// PlaylistConfig controls the generated M3U file.
type PlaylistConfig struct {
	Path  string `yaml:"path"`
	Group string `yaml:"group"`
}

// ServerConfig is only used in serve mode.
type ServerConfig struct {
	Listen           string        `yaml:"listen"`
	RefreshInterval  time.Duration `yaml:"refreshInterval"`
	Watch            bool          `yaml:"watch"`
	RefreshRateLimit int           `yaml:"refreshRateLimit"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}
