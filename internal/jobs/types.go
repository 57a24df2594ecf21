// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/Oktay2617/daddylive/internal/catalog"
	"github.com/Oktay2617/daddylive/internal/playlist"
	"github.com/Oktay2617/daddylive/internal/rescache"
	"github.com/Oktay2617/daddylive/internal/scheduler"
)

var (
	// ErrCatalogUnavailable aborts a run when the channel list or the logo
	// tree cannot be acquired.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrNoChannels is returned when a run produced no playlist entries.
	ErrNoChannels = errors.New("no channels added")
)

// CatalogSource provides the documents a run starts from.
type CatalogSource interface {
	Channels(ctx context.Context) ([]catalog.ChannelRef, error)
	LogoTree(ctx context.Context) (*catalog.LogoTree, error)
}

// Deps holds the collaborators of a refresh run.
type Deps struct {
	Catalog  CatalogSource
	Resolver scheduler.Resolver
	Store    rescache.Store
	Clock    func() time.Time
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// Options controls a single run.
type Options struct {
	// DryRun resolves everything but writes neither the cache nor the playlist.
	DryRun bool
}

// Summary counts outcomes of one run.
type Summary struct {
	CatalogChannels int      `json:"catalog_channels"`
	Targets         int      `json:"targets"`
	Direct          int      `json:"direct"`
	IframeHop       int      `json:"iframe_hop"`
	Cached          int      `json:"cached"`
	Fallback        int      `json:"fallback"`
	Unmatched       []string `json:"unmatched,omitempty"`
}

// Resolved is the number of channels with a discovered or cached manifest.
func (s Summary) Resolved() int { return s.Direct + s.IframeHop + s.Cached }

// ChannelStatus is the per-channel outcome reported by a run.
type ChannelStatus struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Via      string `json:"via"`
	URL      string `json:"url"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Status describes a finished run.
type Status struct {
	RunID        string          `json:"run_id"`
	StartedAt    time.Time       `json:"started_at"`
	Duration     time.Duration   `json:"duration"`
	Channels     int             `json:"channels"`
	Summary      Summary         `json:"summary"`
	PlaylistPath string          `json:"playlist_path,omitempty"`
	DryRun       bool            `json:"dry_run,omitempty"`
	Results      []ChannelStatus `json:"results,omitempty"`
	Error        string          `json:"error,omitempty"`

	// Items are the playlist entries, also populated on dry runs.
	Items []playlist.Item `json:"-"`
}
