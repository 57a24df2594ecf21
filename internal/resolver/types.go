// SPDX-License-Identifier: MIT

package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Oktay2617/daddylive/internal/fetcher"
)

// ErrNotFound is set on a Result when every template and frame was tried.
var ErrNotFound = errors.New("no manifest found")

// Fetcher is the subset of *fetcher.Client the resolver needs.
type Fetcher interface {
	Fetch(ctx context.Context, url, referer string) (*fetcher.Page, error)
}

// ViaKind says how a manifest URL was obtained.
type ViaKind int

const (
	ViaNone ViaKind = iota
	ViaDirect
	ViaIframeHop
	ViaCache
	ViaFallback
)

// Via is the resolution path. The zero value means the resolution is exhausted.
type Via struct {
	Kind ViaKind
	Hop  int
}

func Direct() Via          { return Via{Kind: ViaDirect} }
func IframeHop(n int) Via  { return Via{Kind: ViaIframeHop, Hop: n} }
func FromCache() Via       { return Via{Kind: ViaCache} }
func Fallback() Via        { return Via{Kind: ViaFallback} }
func (v Via) IsZero() bool { return v.Kind == ViaNone }

func (v Via) String() string {
	switch v.Kind {
	case ViaDirect:
		return "direct"
	case ViaIframeHop:
		return fmt.Sprintf("iframe-hop(%d)", v.Hop)
	case ViaCache:
		return "cache"
	case ViaFallback:
		return "fallback"
	}
	return ""
}

// Label is a bounded-cardinality form of String for metrics.
func (v Via) Label() string {
	switch v.Kind {
	case ViaIframeHop:
		return "iframe"
	case ViaNone:
		return "failed"
	}
	return v.String()
}

func (v Via) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// Outcome of a single page visit.
type Outcome string

const (
	OutcomeFound          Outcome = "found"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeNetworkFailure Outcome = "network_failure"
	OutcomeBlocked        Outcome = "blocked"
)

// Attempt records one (template, depth) page visit.
type Attempt struct {
	Template string        `json:"template"`
	Depth    int           `json:"depth"`
	URL      string        `json:"url"`
	Referer  string        `json:"referer"`
	Outcome  Outcome       `json:"outcome"`
	Status   int           `json:"status,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Result is produced exactly once per channel.
type Result struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	ManifestURL string    `json:"manifest_url,omitempty"`
	Via         Via       `json:"via"`
	Attempts    []Attempt `json:"attempts,omitempty"`
	FallbackURL string    `json:"fallback_url,omitempty"`
	Err         error     `json:"-"`
}

// Resolved reports whether a manifest was discovered or served from cache.
func (r Result) Resolved() bool { return r.ManifestURL != "" }

// PlaylistURL is the URL written to the playlist: the manifest, else the fallback.
func (r Result) PlaylistURL() string {
	if r.ManifestURL != "" {
		return r.ManifestURL
	}
	return r.FallbackURL
}
