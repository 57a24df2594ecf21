// SPDX-License-Identifier: MIT

// Package jobs runs the refresh pipeline: acquire the catalog, resolve the
// selected channels, apply fallbacks and write the playlist.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Oktay2617/daddylive/internal/catalog"
	"github.com/Oktay2617/daddylive/internal/config"
	xglog "github.com/Oktay2617/daddylive/internal/log"
	"github.com/Oktay2617/daddylive/internal/metrics"
	"github.com/Oktay2617/daddylive/internal/playlist"
	"github.com/Oktay2617/daddylive/internal/rescache"
	"github.com/Oktay2617/daddylive/internal/resolver"
	"github.com/Oktay2617/daddylive/internal/scheduler"
	"github.com/Oktay2617/daddylive/internal/telemetry"
)

// budgeted gives every channel resolution its own time budget, counted from
// when a worker picks it up.
type budgeted struct {
	scheduler.Resolver
	budget time.Duration
}

func (b budgeted) Resolve(ctx context.Context, ch catalog.ChannelRef) resolver.Result {
	ctx, cancel := context.WithTimeout(ctx, b.budget)
	defer cancel()
	return b.Resolver.Resolve(ctx, ch)
}

// Run performs one refresh. The returned Status is non-nil whenever the run
// got past catalog acquisition, including when ErrNoChannels is returned.
func Run(ctx context.Context, cfg config.Config, deps Deps, opts Options) (*Status, error) {
	runID := uuid.NewString()
	ctx = xglog.ContextWithJobID(ctx, runID)
	logger := xglog.WithComponentFromContext(ctx, "jobs")

	ctx, span := telemetry.Tracer("daddylive.jobs").Start(ctx, "daddylive.refresh")
	defer span.End()

	start := deps.now()
	status := &Status{RunID: runID, StartedAt: start, DryRun: opts.DryRun}
	logger.Info().Bool("dry_run", opts.DryRun).Str(xglog.FieldEvent, "refresh.start").Msg("starting refresh")

	var (
		channels []catalog.ChannelRef
		tree     *catalog.LogoTree
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if channels, err = deps.Catalog.Channels(gctx); err != nil {
			return fmt.Errorf("channel list: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if tree, err = deps.Catalog.LogoTree(gctx); err != nil {
			return fmt.Errorf("logo tree: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.IncRefreshFailure("catalog")
		logger.Error().Err(err).Str(xglog.FieldEvent, "refresh.catalog_failed").Msg("catalog acquisition failed")
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	status.Summary.CatalogChannels = len(channels)

	targets := selectTargets(ctx, cfg.Catalog, channels, &status.Summary)
	status.Summary.Targets = len(targets)

	cache := rescache.Load(ctx, deps.Store)

	channelResolver := deps.Resolver
	if cfg.Resolve.Deadline > 0 {
		channelResolver = budgeted{Resolver: channelResolver, budget: cfg.Resolve.Deadline}
	}
	results := scheduler.ResolveAll(ctx, channelResolver, targets, cache, cfg.Resolve.Concurrency)

	items := make([]playlist.Item, 0, len(results))
	status.Results = make([]ChannelStatus, 0, len(results))
	for i := range results {
		res := &results[i]
		if err := applyFallback(res, cfg.Origin.SiteRoot, cfg.Resolve.FallbackTemplate); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldChannelID, res.ChannelID).Msg("no fallback URL, channel skipped")
			continue
		}
		countVia(&status.Summary, res.Via)

		logo := catalog.LogoURL(cfg.Catalog.LogoRawBase, tree, catalog.PickLogo(res.ChannelName, cfg.Catalog.LogoOverrides, tree))
		items = append(items, playlist.Item{
			TvgID:   res.ChannelID,
			Name:    res.ChannelName,
			TvgLogo: logo,
			Group:   cfg.Playlist.Group,
			URL:     res.PlaylistURL(),
		})
		cs := ChannelStatus{
			ID:       res.ChannelID,
			Name:     res.ChannelName,
			Via:      res.Via.String(),
			URL:      res.PlaylistURL(),
			Attempts: len(res.Attempts),
		}
		if res.Err != nil {
			cs.Error = res.Err.Error()
		}
		status.Results = append(status.Results, cs)
	}
	status.Items = items
	status.Channels = len(items)

	if !opts.DryRun {
		if err := cache.Persist(ctx); err != nil {
			metrics.IncRefreshFailure("cache")
			logger.Warn().Err(err).Str(xglog.FieldEvent, "cache.persist_failed").Msg("resolution cache not saved")
		}
	}

	finish := func(err error) (*Status, error) {
		status.Duration = deps.now().Sub(start)
		if err != nil {
			status.Error = err.Error()
			span.RecordError(err)
		}
		s := status.Summary
		metrics.RecordRun(s.Direct, s.IframeHop, s.Cached, s.Fallback, status.Duration.Seconds())
		logger.Info().
			Int("catalog_channels", s.CatalogChannels).
			Int("channels", status.Channels).
			Int("direct", s.Direct).
			Int("iframe_hop", s.IframeHop).
			Int("cached", s.Cached).
			Int("fallback", s.Fallback).
			Int("unmatched", len(s.Unmatched)).
			Dur("duration", status.Duration).
			Str(xglog.FieldEvent, "refresh.done").
			Msg("refresh finished")
		return status, err
	}

	if len(items) == 0 {
		metrics.IncRefreshFailure("empty")
		return finish(ErrNoChannels)
	}

	if !opts.DryRun {
		path := cfg.Playlist.Path
		if err := playlist.WriteFile(ctx, path, items); err != nil {
			metrics.IncRefreshFailure("playlist")
			return finish(fmt.Errorf("write playlist: %w", err))
		}
		status.PlaylistPath = path
		logger.Info().
			Str(xglog.FieldPlaylistPath, path).
			Int("channels", len(items)).
			Str(xglog.FieldEvent, "playlist.write").
			Msg("playlist written")
	}
	return finish(nil)
}

func selectTargets(ctx context.Context, cfg config.CatalogConfig, channels []catalog.ChannelRef, sum *Summary) []catalog.ChannelRef {
	logger := xglog.WithComponentFromContext(ctx, "jobs")

	fromFile, err := catalog.ReadChannelsFile(cfg.ChannelsFile)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldPath, cfg.ChannelsFile).Msg("channels file ignored")
	}
	wanted := catalog.Wanted(cfg.Channels, fromFile)

	targets, unmatched := catalog.Select(channels, wanted)
	for _, name := range unmatched {
		logger.Warn().Str(xglog.FieldChannel, name).Str(xglog.FieldEvent, "catalog.unmatched").Msg("could not match requested channel")
	}
	sum.Unmatched = unmatched
	if len(wanted) == 0 {
		logger.Info().Int("channels", len(targets)).Msg("no channel selection configured, processing all")
	}
	return targets
}

func countVia(s *Summary, via resolver.Via) {
	switch via.Kind {
	case resolver.ViaDirect:
		s.Direct++
	case resolver.ViaIframeHop:
		s.IframeHop++
	case resolver.ViaCache:
		s.Cached++
	case resolver.ViaFallback:
		s.Fallback++
	}
}
