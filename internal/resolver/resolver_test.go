// SPDX-License-Identifier: MIT

package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oktay2617/daddylive/internal/catalog"
	"github.com/Oktay2617/daddylive/internal/fetcher"
)

const siteRoot = "https://site.example/"

type call struct {
	url     string
	referer string
}

type response struct {
	body   string
	status int
	err    error
}

// fakeFetcher serves canned pages keyed by URL and records every call.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]response
	calls []call
}

func newFake(pages map[string]response) *fakeFetcher {
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, referer string) (*fetcher.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{url, referer})
	resp, ok := f.pages[url]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &fetcher.FetchError{Sentinel: fetcher.ErrExhausted, URL: url, Err: err}
	}
	if !ok {
		return &fetcher.Page{URL: url, Status: 404, Body: "not found"}, nil
	}
	if resp.err != nil {
		return nil, resp.err
	}
	status := resp.status
	if status == 0 {
		status = 200
	}
	return &fetcher.Page{URL: url, Status: status, Body: resp.body}, nil
}

func (f *fakeFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.url)
	}
	return out
}

func (f *fakeFetcher) refererOf(url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.url == url {
			return c.referer
		}
	}
	return ""
}

func newResolver(t *testing.T, f Fetcher, templates []string, hopLimit int) *Resolver {
	t.Helper()
	r, err := New(f, Options{SiteRoot: siteRoot, Templates: templates, HopLimit: hopLimit})
	require.NoError(t, err)
	return r
}

var sports = catalog.ChannelRef{ID: "101", Name: "Example Sports"}

func TestResolve_EndToEndIframeHop(t *testing.T) {
	f := newFake(map[string]response{
		"https://site.example/tmpl/101": {body: `<html><iframe src="//cdn.example/frame?x=1"></iframe></html>`},
		"https://cdn.example/frame?x=1": {body: `{"manifest": "https://cdn.example/abc/index.m3u8?tok=9"}`},
	})
	r := newResolver(t, f, []string{"tmpl/{id}"}, 1)

	res := r.Resolve(context.Background(), sports)

	assert.Equal(t, "https://cdn.example/abc/index.m3u8?tok=9", res.ManifestURL)
	assert.Equal(t, IframeHop(1), res.Via)
	assert.Equal(t, "iframe-hop(1)", res.Via.String())
	assert.NoError(t, res.Err)
	assert.Equal(t, "101", res.ChannelID)
	assert.Equal(t, "Example Sports", res.ChannelName)

	require.Len(t, res.Attempts, 2)
	assert.Equal(t, OutcomeNotFound, res.Attempts[0].Outcome)
	assert.Equal(t, siteRoot, res.Attempts[0].Referer)
	assert.Equal(t, OutcomeFound, res.Attempts[1].Outcome)
	assert.Equal(t, 1, res.Attempts[1].Depth)
	assert.Equal(t, "https://site.example/tmpl/101", f.refererOf("https://cdn.example/frame?x=1"))
}

func TestResolve_HopLimitZeroExhausts(t *testing.T) {
	f := newFake(map[string]response{
		"https://site.example/tmpl/101": {body: `<iframe src="//cdn.example/frame?x=1"></iframe>`},
		"https://cdn.example/frame?x=1": {body: `"https://cdn.example/abc/index.m3u8"`},
	})
	r := newResolver(t, f, []string{"tmpl/{id}"}, 0)

	res := r.Resolve(context.Background(), sports)

	assert.Empty(t, res.ManifestURL)
	assert.True(t, res.Via.IsZero())
	assert.Equal(t, "", res.Via.String())
	assert.ErrorIs(t, res.Err, ErrNotFound)
	assert.Equal(t, []string{"https://site.example/tmpl/101"}, f.urls())
}

func TestResolve_FirstTemplateWins(t *testing.T) {
	f := newFake(map[string]response{
		"https://site.example/one/101": {body: `src="https://edge.example/one.m3u8"`},
		"https://site.example/two/101": {body: `src="https://edge.example/two.m3u8"`},
	})
	r := newResolver(t, f, []string{"one/{id}", "two/{id}"}, 2)

	res := r.Resolve(context.Background(), sports)

	assert.Equal(t, "https://edge.example/one.m3u8", res.ManifestURL)
	assert.Equal(t, Direct(), res.Via)
	assert.Equal(t, []string{"https://site.example/one/101"}, f.urls())
}

func TestResolve_FallsThroughTemplates(t *testing.T) {
	f := newFake(map[string]response{
		"https://site.example/one/101": {err: &fetcher.FetchError{Sentinel: fetcher.ErrExhausted, URL: "x", Err: errors.New("connection reset")}},
		"https://site.example/two/101": {body: `src="https://edge.example/two.m3u8"`},
	})
	r := newResolver(t, f, []string{"one/{id}", "two/{id}"}, 1)

	res := r.Resolve(context.Background(), sports)

	assert.Equal(t, "https://edge.example/two.m3u8", res.ManifestURL)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, OutcomeNetworkFailure, res.Attempts[0].Outcome)
	assert.ErrorIs(t, res.Attempts[0].Err, fetcher.ErrExhausted)
}

func TestResolve_AbsoluteTemplate(t *testing.T) {
	f := newFake(map[string]response{
		"https://mirror.example/embed/101.php": {body: `"https://edge.example/m.m3u8"`},
	})
	r := newResolver(t, f, []string{"https://mirror.example/embed/{id}.php"}, 0)

	res := r.Resolve(context.Background(), sports)
	assert.Equal(t, "https://edge.example/m.m3u8", res.ManifestURL)
	assert.Equal(t, siteRoot, f.refererOf("https://mirror.example/embed/101.php"))
}

func TestResolve_ExtractsFromBlockedBody(t *testing.T) {
	blocked := &fetcher.FetchError{
		Sentinel: fetcher.ErrBlocked,
		URL:      "https://site.example/tmpl/101",
		Status:   403,
		Page:     &fetcher.Page{Status: 403, Body: `Just a moment... "https://edge.example/live.m3u8"`},
		Verdict:  fetcher.Verdict{Blocked: true, Confidence: 0.9},
	}
	f := newFake(map[string]response{"https://site.example/tmpl/101": {err: blocked}})
	r := newResolver(t, f, []string{"tmpl/{id}"}, 1)

	res := r.Resolve(context.Background(), sports)

	assert.Equal(t, "https://edge.example/live.m3u8", res.ManifestURL)
	assert.Equal(t, Direct(), res.Via)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, OutcomeFound, res.Attempts[0].Outcome)
	assert.Equal(t, 403, res.Attempts[0].Status)
}

func TestResolve_BlockedWithoutManifest(t *testing.T) {
	blocked := &fetcher.FetchError{
		Sentinel: fetcher.ErrBlocked,
		Page:     &fetcher.Page{Status: 403, Body: `captcha`},
	}
	f := newFake(map[string]response{"https://site.example/tmpl/101": {err: blocked}})
	r := newResolver(t, f, []string{"tmpl/{id}"}, 1)

	res := r.Resolve(context.Background(), sports)
	assert.False(t, res.Resolved())
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, OutcomeBlocked, res.Attempts[0].Outcome)
}

func TestResolve_BreadthFirst(t *testing.T) {
	f := newFake(map[string]response{
		"https://site.example/tmpl/101": {body: `<iframe src="/a"></iframe><iframe src="/b"></iframe>`},
		"https://site.example/a":        {body: `<iframe src="/a1"></iframe>`},
		"https://site.example/a1":       {body: `"https://edge.example/deep.m3u8"`},
		"https://site.example/b":        {body: `"https://edge.example/shallow.m3u8"`},
	})
	r := newResolver(t, f, []string{"tmpl/{id}"}, 2)

	res := r.Resolve(context.Background(), sports)

	assert.Equal(t, "https://edge.example/shallow.m3u8", res.ManifestURL)
	assert.Equal(t, IframeHop(1), res.Via)
	assert.NotContains(t, f.urls(), "https://site.example/a1")
}

func TestResolve_SecondDepth(t *testing.T) {
	pages := map[string]response{
		"https://site.example/tmpl/101": {body: `<iframe src="/a"></iframe>`},
		"https://site.example/a":        {body: `<iframe src="https://player.example/a1"></iframe>`},
		"https://player.example/a1":     {body: `"https://edge.example/deep.m3u8"`},
	}

	t.Run("within limit", func(t *testing.T) {
		f := newFake(pages)
		res := newResolver(t, f, []string{"tmpl/{id}"}, 2).Resolve(context.Background(), sports)
		assert.Equal(t, IframeHop(2), res.Via)
		assert.Equal(t, "https://site.example/a", f.refererOf("https://player.example/a1"))
	})

	t.Run("beyond limit", func(t *testing.T) {
		f := newFake(pages)
		res := newResolver(t, f, []string{"tmpl/{id}"}, 1).Resolve(context.Background(), sports)
		assert.True(t, res.Via.IsZero())
		assert.NotContains(t, f.urls(), "https://player.example/a1")
	})
}

func TestResolve_CycleGuard(t *testing.T) {
	f := newFake(map[string]response{
		"https://site.example/tmpl/101": {body: `<iframe src="/a"></iframe><iframe src="/tmpl/101"></iframe>`},
		"https://site.example/a":        {body: `<iframe src="/tmpl/101"></iframe><iframe src="/a"></iframe>`},
	})
	r := newResolver(t, f, []string{"tmpl/{id}", "tmpl/{id}"}, 5)

	res := r.Resolve(context.Background(), sports)

	assert.True(t, res.Via.IsZero())
	assert.Equal(t, []string{"https://site.example/tmpl/101", "https://site.example/a"}, f.urls())
}

func TestResolve_ContextCancelled(t *testing.T) {
	f := newFake(map[string]response{
		"https://site.example/one/101": {body: `"https://edge.example/x.m3u8"`},
	})
	r := newResolver(t, f, []string{"one/{id}", "two/{id}"}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Resolve(ctx, sports)

	assert.False(t, res.Resolved())
	assert.ErrorIs(t, res.Err, context.Canceled)
	require.Len(t, res.Attempts, 1)
	assert.ErrorIs(t, res.Attempts[0].Err, context.Canceled)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(newFake(nil), Options{SiteRoot: "not a url", Templates: []string{"x/{id}"}})
	assert.Error(t, err)

	_, err = New(newFake(nil), Options{SiteRoot: siteRoot})
	assert.Error(t, err)
}

func TestExpandTemplate(t *testing.T) {
	r := newResolver(t, newFake(nil), []string{"stream/stream-{id}.php"}, 1)

	got, err := r.TemplateURL("stream/stream-{id}.php", "51")
	require.NoError(t, err)
	assert.Equal(t, "https://site.example/stream/stream-51.php", got)

	got, err = r.TemplateURL("/cast/{id}", "a b")
	require.NoError(t, err)
	assert.Equal(t, "https://site.example/cast/a%20b", got)
}

func TestVia(t *testing.T) {
	tests := []struct {
		via   Via
		str   string
		label string
	}{
		{Via{}, "", "failed"},
		{Direct(), "direct", "direct"},
		{IframeHop(2), "iframe-hop(2)", "iframe"},
		{FromCache(), "cache", "cache"},
		{Fallback(), "fallback", "fallback"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.str, tt.via.String())
		assert.Equal(t, tt.label, tt.via.Label())
	}
}

func TestResultPlaylistURL(t *testing.T) {
	assert.Equal(t, "m", Result{ManifestURL: "m", FallbackURL: "f"}.PlaylistURL())
	assert.Equal(t, "f", Result{FallbackURL: "f"}.PlaylistURL())
}
