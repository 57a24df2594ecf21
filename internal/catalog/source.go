// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/Oktay2617/daddylive/internal/config"
	xglog "github.com/Oktay2617/daddylive/internal/log"
)

// Source downloads the catalog documents and memoizes parsed results for a
// TTL, so that repeated refreshes in serve mode reuse them.
type Source struct {
	fetcher     Fetcher
	channelsURL string
	logosURL    string

	channels *otter.Cache[string, []ChannelRef]
	trees    *otter.Cache[string, *LogoTree]
}

// NewSource creates a Source. A ttl of zero disables memoization.
func NewSource(f Fetcher, cfg config.CatalogConfig) *Source {
	s := &Source{fetcher: f, channelsURL: cfg.ChannelsURL, logosURL: cfg.LogosURL}
	if cfg.TTL > 0 {
		s.channels = newMemo[[]ChannelRef](cfg.TTL)
		s.trees = newMemo[*LogoTree](cfg.TTL)
	}
	return s
}

func newMemo[V any](ttl time.Duration) *otter.Cache[string, V] {
	return otter.Must(&otter.Options[string, V]{
		MaximumSize:      16,
		ExpiryCalculator: otter.ExpiryWriting[string, V](ttl),
	})
}

// Channels returns the channel list.
func (s *Source) Channels(ctx context.Context) ([]ChannelRef, error) {
	if s.channels != nil {
		if v, ok := s.channels.GetIfPresent(s.channelsURL); ok {
			logMemoHit(ctx, s.channelsURL)
			return v, nil
		}
	}
	v, err := FetchChannels(ctx, s.fetcher, s.channelsURL)
	if err != nil {
		return nil, err
	}
	if s.channels != nil {
		s.channels.Set(s.channelsURL, v)
	}
	return v, nil
}

// LogoTree returns the logo repository tree.
func (s *Source) LogoTree(ctx context.Context) (*LogoTree, error) {
	if s.trees != nil {
		if v, ok := s.trees.GetIfPresent(s.logosURL); ok {
			logMemoHit(ctx, s.logosURL)
			return v, nil
		}
	}
	v, err := FetchLogoTree(ctx, s.fetcher, s.logosURL)
	if err != nil {
		return nil, err
	}
	if s.trees != nil {
		s.trees.Set(s.logosURL, v)
	}
	return v, nil
}

// Forget drops memoized documents so the next call downloads them again.
func (s *Source) Forget() {
	if s.channels != nil {
		s.channels.Invalidate(s.channelsURL)
	}
	if s.trees != nil {
		s.trees.Invalidate(s.logosURL)
	}
}

func logMemoHit(ctx context.Context, url string) {
	logger := xglog.WithComponentFromContext(ctx, "catalog")
	logger.Debug().Str(xglog.FieldURL, url).Str(xglog.FieldEvent, "catalog.memo_hit").Msg("reusing catalog document")
}
