// SPDX-License-Identifier: MIT

// Package scheduler resolves many channels on a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Oktay2617/daddylive/internal/catalog"
	xglog "github.com/Oktay2617/daddylive/internal/log"
	"github.com/Oktay2617/daddylive/internal/metrics"
	"github.com/Oktay2617/daddylive/internal/rescache"
	"github.com/Oktay2617/daddylive/internal/resolver"
	"github.com/Oktay2617/daddylive/internal/telemetry"
)

// MaxConcurrency caps the worker pool size.
const MaxConcurrency = 64

// ErrPanic marks a resolution that panicked.
var ErrPanic = errors.New("resolution panicked")

// Resolver is implemented by *resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, ch catalog.ChannelRef) resolver.Result
}

var resolveDuration, _ = telemetry.Meter("daddylive/scheduler").Float64Histogram(
	"daddylive.resolve.duration",
	metric.WithDescription("Wall time of one channel resolution"),
	metric.WithUnit("s"),
)

// ClampConcurrency bounds n to [1, MaxConcurrency].
func ClampConcurrency(n int) int {
	return max(1, min(n, MaxConcurrency))
}

type completion struct {
	index  int
	result resolver.Result
}

// ResolveAll returns one Result per channel, in input order. Cache hits are
// answered without network activity; misses run on a pool of at most
// concurrency workers. Results are harvested on the calling goroutine, which
// is the only writer to cache.
func ResolveAll(ctx context.Context, r Resolver, channels []catalog.ChannelRef, cache *rescache.Cache, concurrency int) []resolver.Result {
	logger := xglog.WithComponentFromContext(ctx, "scheduler")
	results := make([]resolver.Result, len(channels))

	var misses []int
	for i, ch := range channels {
		if u, ok := cache.Get(ch.ID); ok {
			results[i] = resolver.Result{ChannelID: ch.ID, ChannelName: ch.Name, ManifestURL: u, Via: resolver.FromCache()}
			metrics.IncCacheLookup(true)
			metrics.IncResolution(results[i].Via.Label())
			continue
		}
		metrics.IncCacheLookup(false)
		misses = append(misses, i)
	}

	workers := ClampConcurrency(concurrency)
	logger.Info().
		Int("channels", len(channels)).
		Int("cache_hits", len(channels)-len(misses)).
		Int("workers", workers).
		Str(xglog.FieldEvent, "scheduler.start").
		Msg("resolving channels")
	if len(misses) == 0 {
		return results
	}

	pool, err := ants.NewPool(min(workers, len(misses)), ants.WithPreAlloc(true))
	if err != nil {
		// Pool creation only fails on invalid options; resolve inline.
		logger.Error().Err(err).Msg("worker pool unavailable, resolving sequentially")
		for _, i := range misses {
			res := runOne(ctx, r, channels[i])
			harvest(ctx, cache, &results[i], res)
		}
		return results
	}
	defer func() {
		if err := pool.ReleaseTimeout(5 * time.Second); err != nil {
			logger.Warn().Err(err).Msg("worker pool release timed out")
		}
	}()

	done := make(chan completion, len(misses))
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for _, i := range misses {
			ch := channels[i]
			idx := i
			if err := pool.Submit(func() {
				done <- completion{index: idx, result: runOne(ctx, r, ch)}
			}); err != nil {
				done <- completion{index: idx, result: resolver.Result{
					ChannelID:   ch.ID,
					ChannelName: ch.Name,
					Err:         fmt.Errorf("submit: %w", err),
				}}
			}
		}
	}()

	for range misses {
		c := <-done
		harvest(ctx, cache, &results[c.index], c.result)
	}
	<-dispatched
	return results
}

// runOne resolves a single channel, converting a panic into a failed result.
func runOne(ctx context.Context, r Resolver, ch catalog.ChannelRef) (res resolver.Result) {
	defer metrics.TrackInflight()()
	defer func() {
		if p := recover(); p != nil {
			logger := xglog.WithComponentFromContext(ctx, "scheduler")
			logger.Error().
				Str(xglog.FieldChannelID, ch.ID).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Str(xglog.FieldEvent, "resolve.panic").
				Msg("resolution panicked")
			res = resolver.Result{ChannelID: ch.ID, ChannelName: ch.Name, Err: fmt.Errorf("%w: %v", ErrPanic, p)}
		}
	}()
	start := time.Now()
	defer func() {
		resolveDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("via", res.Via.Label())))
	}()
	res = r.Resolve(ctx, ch)
	res.ChannelID, res.ChannelName = ch.ID, ch.Name
	return res
}

func harvest(ctx context.Context, cache *rescache.Cache, slot *resolver.Result, res resolver.Result) {
	*slot = res
	metrics.IncResolution(res.Via.Label())
	if res.ManifestURL != "" {
		cache.Put(res.ChannelID, res.ManifestURL)
	}
	logger := xglog.WithComponentFromContext(ctx, "scheduler")
	ev := logger.Debug()
	if res.Err != nil && !errors.Is(res.Err, resolver.ErrNotFound) {
		ev = logger.Warn().Err(res.Err)
	}
	ev.Str(xglog.FieldChannelID, res.ChannelID).
		Str(xglog.FieldChannel, res.ChannelName).
		Str(xglog.FieldVia, res.Via.String()).
		Int("attempts", len(res.Attempts)).
		Str(xglog.FieldEvent, "resolve.done").
		Msg("channel resolved")
}
