// SPDX-License-Identifier: MIT

package config

import "time"

// DefaultUserAgent mimics a current desktop Chrome build.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/124.0 Safari/537.36"

// DefaultBlockPhrases are lowercase needles that mark a block or challenge page.
var DefaultBlockPhrases = []string{
	"just a moment",
	"rate limit",
	"access denied",
	"captcha",
	"request blocked",
	"attention required!",
	"you have been blocked",
}

// DefaultLogoOverrides maps exact channel names to paths inside the logo repository.
var DefaultLogoOverrides = map[string]string{
	"NFL Network": "countries/united-states/nfl-network.png",
	"ESPN":        "countries/united-states/espn.png",
	"ESPN2":       "countries/united-states/espn2.png",
	"ABC":         "countries/united-states/abc.png",
	"NBC":         "countries/united-states/nbc.png",
	"CBS":         "countries/united-states/cbs.png",
	"FOX":         "countries/united-states/fox.png",
	"FS1":         "countries/united-states/fox-sports-1.png",
	"TNT":         "countries/united-states/tnt.png",
	"NBA TV":      "countries/united-states/nba-tv.png",
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	overrides := make(map[string]string, len(DefaultLogoOverrides))
	for k, v := range DefaultLogoOverrides {
		overrides[k] = v
	}

	return Config{
		DataDir: "data",
		Log: LogConfig{
			Level:   "info",
			Service: "daddylive",
		},
		Origin: OriginConfig{
			SiteRoot: "https://dlhd.dad/",
		},
		Fetch: FetchConfig{
			Timeout:        30 * time.Second,
			ConnectTimeout: 10 * time.Second,
			Attempts:       4,
			Backoff:        time.Second,
			MaxBackoff:     8 * time.Second,
			UserAgent:      DefaultUserAgent,
			MaxBodyBytes:   8 << 20,
			InsecureHosts:  []string{"dlhd.dad"},
			RatePerHost:    5,
			BurstPerHost:   10,
			BlockMinBytes:  1500,
			BlockPhrases:   append([]string(nil), DefaultBlockPhrases...),
			BlockThreshold: 0.8,
		},
		Resolve: ResolveConfig{
			Templates: []string{
				"stream/stream-{id}.php",
				"cast/stream-{id}.php",
				"watch/stream-{id}.php",
				"plus/stream-{id}.php",
			},
			HopLimit:         2,
			MaxFrames:        8,
			Concurrency:      8,
			Deadline:         0,
			FallbackTemplate: "https://dlhd.dad/stream/stream-{id}.php",
		},
		Cache: CacheConfig{
			Backend: "file",
			Path:    "stream_cache.json",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  "daddylive:streams",
			},
		},
		Catalog: CatalogConfig{
			ChannelsURL:   "https://dlhd.dad/daddy.json",
			LogosURL:      "https://github.com/tv-logo/tv-logos/tree/main/countries/united-states",
			LogoRawBase:   "https://raw.githubusercontent.com",
			LogoOverrides: overrides,
			ChannelsFile:  "channels.txt",
			TTL:           time.Hour,
		},
		Playlist: PlaylistConfig{
			Path:  "out.m3u8",
			Group: "USA (DADDY LIVE)",
		},
		Server: ServerConfig{
			Listen:           ":8080",
			RefreshInterval:  0,
			Watch:            true,
			RefreshRateLimit: 10,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}
