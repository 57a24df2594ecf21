// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// IDPlaceholder is substituted with the channel id in URL templates.
const IDPlaceholder = "{id}"

var validBackends = map[string]struct{}{
	"file":   {},
	"sqlite": {},
	"redis":  {},
	"badger": {},
	"memory": {},
}

// Validate checks the merged configuration. All problems are reported at once.
func Validate(cfg Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if err := checkHTTPURL(cfg.Origin.SiteRoot); err != nil {
		add("origin.siteRoot: %w", err)
	}

	f := cfg.Fetch
	if f.Attempts < 1 {
		add("fetch.attempts must be >= 1, got %d", f.Attempts)
	}
	if f.Timeout <= 0 {
		add("fetch.timeout must be positive")
	}
	if f.Backoff < 0 || f.MaxBackoff < 0 {
		add("fetch backoff durations must not be negative")
	}
	if f.MaxBodyBytes <= 0 {
		add("fetch.maxBodyBytes must be positive")
	}
	if f.BlockThreshold <= 0 || f.BlockThreshold > 1 {
		add("fetch.blockThreshold must be in (0,1], got %v", f.BlockThreshold)
	}
	if f.BlockMinBytes < 0 {
		add("fetch.blockMinBytes must not be negative")
	}
	if f.RatePerHost < 0 {
		add("fetch.ratePerHost must not be negative")
	}

	r := cfg.Resolve
	if len(r.Templates) == 0 {
		add("resolve.templates must not be empty")
	}
	for i, t := range r.Templates {
		if !strings.Contains(t, IDPlaceholder) {
			add("resolve.templates[%d] %q lacks %s placeholder", i, t, IDPlaceholder)
		}
	}
	if r.HopLimit < 0 {
		add("resolve.hopLimit must not be negative")
	}
	if r.MaxFrames < 1 {
		add("resolve.maxFrames must be >= 1")
	}
	if r.Concurrency < 1 {
		add("resolve.concurrency must be >= 1, got %d", r.Concurrency)
	}
	if r.Deadline < 0 {
		add("resolve.deadline must not be negative")
	}
	if r.FallbackTemplate != "" && !strings.Contains(r.FallbackTemplate, IDPlaceholder) {
		add("resolve.fallbackTemplate lacks %s placeholder", IDPlaceholder)
	}

	if _, ok := validBackends[cfg.Cache.Backend]; !ok {
		add("cache.backend %q is not one of file, sqlite, redis, badger, memory", cfg.Cache.Backend)
	}
	switch cfg.Cache.Backend {
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			add("cache.redis.addr is required for the redis backend")
		}
	case "memory":
	default:
		if cfg.Cache.Path == "" {
			add("cache.path is required for the %s backend", cfg.Cache.Backend)
		}
	}

	if err := checkHTTPURL(cfg.Catalog.ChannelsURL); err != nil {
		add("catalog.channelsURL: %w", err)
	}
	if cfg.Catalog.LogosURL != "" {
		if err := checkHTTPURL(cfg.Catalog.LogosURL); err != nil {
			add("catalog.logosURL: %w", err)
		}
	}
	if cfg.Playlist.Path == "" {
		add("playlist.path must not be empty")
	}
	if cfg.Server.RefreshInterval < 0 {
		add("server.refreshInterval must not be negative")
	}

	t := cfg.Telemetry
	if t.Enabled {
		if t.Exporter != "grpc" && t.Exporter != "http" {
			add("telemetry.exporter must be grpc or http, got %q", t.Exporter)
		}
		if t.SamplingRate < 0 || t.SamplingRate > 1 {
			add("telemetry.samplingRate must be in [0,1]")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is empty")
	}
	return nil
}
