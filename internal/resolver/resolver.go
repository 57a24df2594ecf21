// SPDX-License-Identifier: MIT

// Package resolver turns a channel id into a manifest URL by visiting the
// configured player page templates and, breadth-first, the frames they embed.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/Oktay2617/daddylive/internal/catalog"
	"github.com/Oktay2617/daddylive/internal/config"
	"github.com/Oktay2617/daddylive/internal/extract"
	"github.com/Oktay2617/daddylive/internal/fetcher"
	xglog "github.com/Oktay2617/daddylive/internal/log"
	"github.com/Oktay2617/daddylive/internal/telemetry"
)

// Options configures a Resolver.
type Options struct {
	SiteRoot  string
	Templates []string
	// HopLimit is the maximum frame nesting depth; 0 disables frames.
	HopLimit  int
	MaxFrames int
}

// OptionsFromConfig maps the origin and resolve sections.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		SiteRoot:  cfg.Origin.SiteRoot,
		Templates: cfg.Resolve.Templates,
		HopLimit:  cfg.Resolve.HopLimit,
		MaxFrames: cfg.Resolve.MaxFrames,
	}
}

// Resolver is stateless between calls and safe for concurrent use.
type Resolver struct {
	fetcher  Fetcher
	opts     Options
	siteRoot *url.URL

	probes   metric.Int64Counter
	duration metric.Float64Histogram
}

// New validates opts and creates a Resolver.
func New(f Fetcher, opts Options) (*Resolver, error) {
	root, err := url.Parse(opts.SiteRoot)
	if err != nil || root.Host == "" {
		return nil, fmt.Errorf("invalid site root %q", opts.SiteRoot)
	}
	if len(opts.Templates) == 0 {
		return nil, errors.New("no endpoint templates configured")
	}
	if opts.HopLimit < 0 {
		opts.HopLimit = 0
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = extract.MaxFrames
	}

	r := &Resolver{fetcher: f, opts: opts, siteRoot: root}

	meter := telemetry.Meter("daddylive.resolver")
	if r.probes, err = meter.Int64Counter("daddylive.resolver.probes",
		metric.WithDescription("Player and frame pages visited, by outcome")); err != nil {
		r.probes = metricnoop.Int64Counter{}
	}
	if r.duration, err = meter.Float64Histogram("daddylive.resolver.duration",
		metric.WithDescription("Time to resolve one channel"),
		metric.WithUnit("s")); err != nil {
		r.duration = metricnoop.Float64Histogram{}
	}
	return r, nil
}

// TemplateURL expands a template for id, resolving relative templates
// against the site root.
func (r *Resolver) TemplateURL(tmpl, id string) (string, error) {
	return ExpandTemplate(r.siteRoot, tmpl, id)
}

// ExpandTemplate substitutes {id} and resolves the result against root.
func ExpandTemplate(root *url.URL, tmpl, id string) (string, error) {
	expanded := strings.ReplaceAll(tmpl, config.IDPlaceholder, url.PathEscape(id))
	ref, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("template %q: %w", tmpl, err)
	}
	return root.ResolveReference(ref).String(), nil
}

type frameRef struct {
	url     string
	referer string
}

// Resolve runs the per-channel search. It never returns an error; failures
// are recorded on the Result and its Attempts.
func (r *Resolver) Resolve(ctx context.Context, ch catalog.ChannelRef) Result {
	ctx = xglog.ContextWithChannelID(ctx, ch.ID)
	logger := xglog.WithComponentFromContext(ctx, "resolver")

	ctx, span := telemetry.Tracer("daddylive.resolver").Start(ctx, "daddylive.resolve")
	span.SetAttributes(telemetry.ChannelAttributes(ch.ID, ch.Name)...)
	defer span.End()

	start := time.Now()
	res := Result{ChannelID: ch.ID, ChannelName: ch.Name}
	visited := make(map[string]struct{})
	referer := r.siteRoot.String()

	finish := func() Result {
		r.duration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String(telemetry.ResolveViaKey, res.Via.Label())))
		span.SetAttributes(
			attribute.String(telemetry.ResolveViaKey, res.Via.String()),
			attribute.Int(telemetry.ResolveAttemptsKey, len(res.Attempts)),
		)
		if res.Err != nil {
			span.SetStatus(codes.Error, res.Err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return res
	}

	for _, tmpl := range r.opts.Templates {
		pageURL, err := r.TemplateURL(tmpl, ch.ID)
		if err != nil {
			res.Attempts = append(res.Attempts, Attempt{Template: tmpl, Outcome: OutcomeNetworkFailure, Err: err})
			continue
		}
		if _, seen := visited[pageURL]; seen {
			continue
		}

		manifest, page := r.probe(ctx, &res, visited, tmpl, 0, pageURL, referer)
		if manifest != "" {
			res.ManifestURL, res.Via = manifest, Direct()
			logger.Info().
				Str(xglog.FieldTemplate, tmpl).
				Str(xglog.FieldVia, res.Via.String()).
				Str(xglog.FieldManifest, manifest).
				Str("event", "resolve.found").
				Msg("manifest found")
			return finish()
		}
		if err := ctx.Err(); err != nil {
			markCancelled(&res, err)
			return finish()
		}
		if page == nil || r.opts.HopLimit == 0 {
			continue
		}

		frontier := r.framesOf(page, pageURL)
		for depth := 1; depth <= r.opts.HopLimit && len(frontier) > 0; depth++ {
			var next []frameRef
			for _, fr := range frontier {
				if _, seen := visited[fr.url]; seen {
					continue
				}
				manifest, framePage := r.probe(ctx, &res, visited, tmpl, depth, fr.url, fr.referer)
				if manifest != "" {
					res.ManifestURL, res.Via = manifest, IframeHop(depth)
					logger.Info().
						Str(xglog.FieldTemplate, tmpl).
						Int(xglog.FieldDepth, depth).
						Str(xglog.FieldVia, res.Via.String()).
						Str(xglog.FieldManifest, manifest).
						Str("event", "resolve.found").
						Msg("manifest found in frame")
					return finish()
				}
				if err := ctx.Err(); err != nil {
					markCancelled(&res, err)
					return finish()
				}
				if framePage != nil && depth < r.opts.HopLimit {
					next = append(next, r.framesOf(framePage, fr.url)...)
				}
			}
			frontier = next
		}
	}

	res.Err = ErrNotFound
	logger.Warn().
		Int("attempts", len(res.Attempts)).
		Str("event", "resolve.exhausted").
		Msg("no manifest found")
	return finish()
}

// markCancelled records cause on the result and on the last attempt.
func markCancelled(res *Result, cause error) {
	res.Err = cause
	if n := len(res.Attempts); n > 0 {
		last := &res.Attempts[n-1]
		if !errors.Is(last.Err, cause) {
			last.Err = errors.Join(last.Err, cause)
		}
	}
}

func (r *Resolver) framesOf(page *fetcher.Page, requested string) []frameRef {
	base := page.FinalURL
	if base == "" {
		base = requested
	}
	urls := extract.FramesLimit(page.Body, base, r.opts.MaxFrames)
	out := make([]frameRef, 0, len(urls))
	for _, u := range urls {
		out = append(out, frameRef{url: u, referer: base})
	}
	return out
}

// probe fetches one page and looks for a manifest in it. A page is returned
// when a body was available, including degraded bodies from blocked responses.
func (r *Resolver) probe(ctx context.Context, res *Result, visited map[string]struct{}, tmpl string, depth int, pageURL, referer string) (string, *fetcher.Page) {
	visited[pageURL] = struct{}{}

	ctx, span := telemetry.Tracer("daddylive.resolver").Start(ctx, "daddylive.resolve.probe")
	span.SetAttributes(telemetry.ProbeAttributes(tmpl, depth)...)
	defer span.End()

	start := time.Now()
	page, err := r.fetcher.Fetch(ctx, pageURL, referer)
	att := Attempt{
		Template: tmpl,
		Depth:    depth,
		URL:      pageURL,
		Referer:  referer,
		Outcome:  OutcomeNotFound,
		Err:      err,
		Duration: time.Since(start),
	}

	if err != nil {
		att.Outcome = OutcomeNetworkFailure
		if errors.Is(err, fetcher.ErrBlocked) {
			att.Outcome = OutcomeBlocked
		}
		page, _ = fetcher.PageFromError(err)
		span.RecordError(err)
	}

	var manifest string
	if page != nil {
		att.Status = page.Status
		if m, ok := extract.Manifest(page.Body); ok {
			manifest = m
			att.Outcome = OutcomeFound
		}
	}

	span.SetAttributes(attribute.String("resolve.outcome", string(att.Outcome)))
	r.probes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(att.Outcome))))

	logger := xglog.WithComponentFromContext(ctx, "resolver")
	logger.Debug().
		Str(xglog.FieldTemplate, tmpl).
		Int(xglog.FieldDepth, depth).
		Str(xglog.FieldURL, pageURL).
		Str(xglog.FieldReferer, referer).
		Str("outcome", string(att.Outcome)).
		Dur("duration", att.Duration).
		AnErr("error", err).
		Msg("page probed")

	res.Attempts = append(res.Attempts, att)
	return manifest, page
}
