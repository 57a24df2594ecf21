// SPDX-License-Identifier: MIT

// Package fetcher performs browser-like HTTP GETs against an unreliable origin:
// retries with capped backoff, a per-host rate limit, block-page
// classification and a one-shot insecure TLS fallback for known hosts.
package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Oktay2617/daddylive/internal/config"
	xglog "github.com/Oktay2617/daddylive/internal/log"
	"github.com/Oktay2617/daddylive/internal/metrics"
	"github.com/Oktay2617/daddylive/internal/telemetry"
)

const (
	headerAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	headerAcceptLanguage = "en-US,en;q=0.8"
	headerAcceptEncoding = "gzip, deflate, br"

	maxRedirects = 10
)

var errInsecureRedirect = errors.New("redirect leaves the insecure hosts")

// Page is a fetched response body. Status may be 4xx.
type Page struct {
	URL      string
	FinalURL string
	Status   int
	Header   http.Header
	Body     string
}

// RetryPolicy controls the attempt loop. Jitter is a fraction of the wait.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
	Jitter   float64
}

// DefaultRetryPolicy is 4 attempts, 1s doubling, capped at 8s.
var DefaultRetryPolicy = RetryPolicy{Attempts: 4, Base: time.Second, Max: 8 * time.Second, Jitter: 0.2}

// Options configures a Client.
type Options struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
	Retry          RetryPolicy
	UserAgent      string
	MaxBodyBytes   int64

	InsecureHosts    []string
	InsecureAllHosts bool

	RatePerHost  float64
	BurstPerHost int

	Classifier Classifier
}

// OptionsFromConfig maps the fetch section of the configuration.
func OptionsFromConfig(cfg config.FetchConfig) Options {
	return Options{
		Timeout:        cfg.Timeout,
		ConnectTimeout: cfg.ConnectTimeout,
		Retry: RetryPolicy{
			Attempts: cfg.Attempts,
			Base:     cfg.Backoff,
			Max:      cfg.MaxBackoff,
			Jitter:   DefaultRetryPolicy.Jitter,
		},
		UserAgent:        cfg.UserAgent,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		InsecureHosts:    cfg.InsecureHosts,
		InsecureAllHosts: cfg.InsecureAllHosts,
		RatePerHost:      cfg.RatePerHost,
		BurstPerHost:     cfg.BurstPerHost,
		Classifier: Classifier{
			MinBytes:  cfg.BlockMinBytes,
			Phrases:   cfg.BlockPhrases,
			Threshold: cfg.BlockThreshold,
		},
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry.Attempts = DefaultRetryPolicy.Attempts
	}
	if opts.Retry.Base < 0 {
		opts.Retry.Base = 0
	}
	if opts.Retry.Max <= 0 {
		opts.Retry.Max = DefaultRetryPolicy.Max
	}
	if opts.Retry.Jitter < 0 {
		opts.Retry.Jitter = 0
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = config.DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 << 20
	}
	if opts.BurstPerHost <= 0 {
		opts.BurstPerHost = 1
	}
	if opts.Classifier.Phrases == nil {
		opts.Classifier.Phrases = config.DefaultBlockPhrases
	}
	return opts
}

// Client is safe for concurrent use.
type Client struct {
	opts     Options
	strict   *http.Client
	insecure *http.Client

	transports []*http.Transport

	insecureHosts map[string]struct{}
	limiters      *xsync.MapOf[string, *rate.Limiter]
	group         singleflight.Group

	rnd *rand.Rand
	mu  sync.Mutex

	// sleep is replaced in tests.
	sleep func(context.Context, time.Duration) error
}

// New builds a Client with two transports sharing one cookie jar: the
// strict one and a clone that skips certificate validation.
func New(opts Options) *Client {
	opts = normalizeOptions(opts)

	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.Timeout,
		ForceAttemptHTTP2:     true,
	}
	insecure := base.Clone()
	insecure.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true, // #nosec G402 -- only used for configured hosts after a strict attempt failed
		MinVersion:         tls.VersionTLS12,
	}

	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	hosts := make(map[string]struct{}, len(opts.InsecureHosts))
	for _, h := range opts.InsecureHosts {
		if h = normalizeHost(h); h != "" {
			hosts[h] = struct{}{}
		}
	}

	c := &Client{
		opts: opts,
		strict: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(base),
			Jar:       jar,
		},
		insecure: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(insecure),
			Jar:       jar,
		},
		transports:    []*http.Transport{base, insecure},
		insecureHosts: hosts,
		limiters:      xsync.NewMapOf[string, *rate.Limiter](),
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
		sleep:         sleepWithContext,
	}
	c.insecure.CheckRedirect = c.checkInsecureRedirect
	return c
}

// checkInsecureRedirect keeps the unverified client on the configured hosts.
func (c *Client) checkInsecureRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL.Scheme == "https" && !c.insecureAllowed(normalizeHost(req.URL.Hostname())) {
		return fmt.Errorf("%w: %s", errInsecureRedirect, req.URL.Host)
	}
	return nil
}

// Close drops idle keep-alive connections.
func (c *Client) Close() {
	for _, t := range c.transports {
		t.CloseIdleConnections()
	}
}

// Fetch GETs rawURL with the browser header set and referer, if non-empty.
// Concurrent calls for the same url and referer share one request.
//
// A 4xx response is returned as a Page. Failures are *FetchError values; a
// blocked response is reported as ErrBlocked with the page attached.
func (c *Client) Fetch(ctx context.Context, rawURL, referer string) (*Page, error) {
	key := rawURL + "\x00" + referer
	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetch(ctx, rawURL, referer)
	})
	select {
	case <-ctx.Done():
		return nil, &FetchError{Sentinel: ErrExhausted, URL: rawURL, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Page), nil
	}
}

func (c *Client) fetch(ctx context.Context, rawURL, referer string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("unsupported url %q", rawURL)
		}
		return nil, &FetchError{Sentinel: ErrInvalidURL, URL: rawURL, Err: err}
	}
	host := normalizeHost(u.Hostname())

	tracer := telemetry.Tracer("daddylive.fetcher")
	route, urlLabel := traceLabels(u)
	ctx, span := tracer.Start(ctx, "daddylive.fetch", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String(telemetry.HTTPMethodKey, http.MethodGet),
		attribute.String(telemetry.HTTPHostKey, host),
		attribute.String(telemetry.HTTPRouteKey, route),
	)
	defer span.End()

	logger := xglog.WithComponentFromContext(ctx, "fetcher")
	policy := c.opts.Retry

	var (
		lastErr  error
		lastPage *Page
		attempts int
	)
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		attempts = attempt
		if err := c.limiterFor(host).Wait(ctx); err != nil {
			return nil, c.fail(span, &FetchError{Sentinel: ErrExhausted, URL: rawURL, Attempts: attempt - 1, Err: err})
		}

		page, err := c.do(ctx, c.strict, rawURL, referer, attempt, route, urlLabel)
		if err != nil && isTLSError(err) {
			if !c.insecureAllowed(host) {
				return nil, c.fail(span, &FetchError{Sentinel: ErrTLS, URL: rawURL, Attempts: attempt, Err: err})
			}
			logger.Warn().
				Err(err).
				Str(xglog.FieldHost, host).
				Str("event", "fetch.tls_fallback").
				Msg("certificate validation failed, retrying once without verification")
			span.SetAttributes(attribute.Bool(telemetry.FetchTLSFallbackKey, true))

			page, err = c.do(ctx, c.insecure, rawURL, referer, attempt, route, urlLabel)
			metrics.IncTLSFallback(err == nil)
			if err != nil {
				sentinel := ErrExhausted
				if errors.Is(err, errInsecureRedirect) {
					sentinel = ErrTLS
				}
				return nil, c.fail(span, &FetchError{Sentinel: sentinel, URL: rawURL, Attempts: attempt, Err: err})
			}
			// The fallback is the last attempt regardless of its status.
			return c.finish(span, rawURL, attempt, page)
		}

		if err == nil && page.Status < http.StatusInternalServerError {
			return c.finish(span, rawURL, attempt, page)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, c.fail(span, &FetchError{Sentinel: ErrExhausted, URL: rawURL, Attempts: attempt, Page: page, Err: ctxErr})
		}

		lastErr, lastPage = err, page
		if attempt == policy.Attempts {
			break
		}

		wait := c.backoffFor(attempt - 1)
		ev := logger.Debug().
			Str(xglog.FieldURL, rawURL).
			Int(xglog.FieldAttempt, attempt).
			Dur("wait", wait).
			Str("event", "fetch.retry")
		if err != nil {
			ev = ev.Err(err)
		} else {
			ev = ev.Int(xglog.FieldStatus, page.Status)
		}
		ev.Msg("attempt failed, backing off")

		if err := c.sleep(ctx, wait); err != nil {
			return nil, c.fail(span, &FetchError{Sentinel: ErrExhausted, URL: rawURL, Attempts: attempt, Page: lastPage, Err: err})
		}
	}

	fe := &FetchError{Sentinel: ErrExhausted, URL: rawURL, Attempts: attempts, Page: lastPage, Err: lastErr}
	if lastPage != nil {
		fe.Status = lastPage.Status
		if v := c.opts.Classifier.Classify(lastPage.Status, lastPage.Body); v.Blocked {
			fe.Sentinel = ErrBlocked
			fe.Verdict = v
			metrics.IncFetchBlocked()
		}
	}
	return nil, c.fail(span, fe)
}

// finish classifies a response that ended the attempt loop.
func (c *Client) finish(span trace.Span, rawURL string, attempt int, page *Page) (*Page, error) {
	v := c.opts.Classifier.Classify(page.Status, page.Body)
	span.SetAttributes(
		attribute.Int(telemetry.HTTPStatusCodeKey, page.Status),
		attribute.Int(telemetry.FetchAttemptKey, attempt),
		attribute.Float64(telemetry.FetchConfidenceKey, v.Confidence),
	)
	if v.Blocked {
		metrics.IncFetchBlocked()
		span.SetAttributes(attribute.Bool(telemetry.FetchBlockedKey, true))
		return nil, c.fail(span, &FetchError{
			Sentinel: ErrBlocked,
			URL:      rawURL,
			Attempts: attempt,
			Status:   page.Status,
			Page:     page,
			Verdict:  v,
		})
	}
	if page.Status >= http.StatusInternalServerError {
		return nil, c.fail(span, &FetchError{Sentinel: ErrExhausted, URL: rawURL, Attempts: attempt, Status: page.Status, Page: page})
	}
	if page.Status >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(page.Status))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return page, nil
}

func (c *Client) fail(span trace.Span, fe *FetchError) error {
	span.RecordError(fe)
	span.SetStatus(codes.Error, fe.Sentinel.Error())
	return fe
}

// do performs one attempt and reads the decoded body.
func (c *Client) do(ctx context.Context, hc *http.Client, rawURL, referer string, attempt int, route, urlLabel string) (*Page, error) {
	tracer := telemetry.Tracer("daddylive.fetcher")
	attemptCtx, span := tracer.Start(ctx, "daddylive.fetch.attempt", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.Int(telemetry.FetchAttemptKey, attempt),
		attribute.Bool("retry", attempt > 1),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c.applyHeaders(req, referer)
	otel.GetTextMapPropagator().Inject(attemptCtx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	page, err := c.roundTrip(hc, req)
	duration := time.Since(start)

	status := 0
	if page != nil {
		status = page.Status
	}
	retry := (err != nil && !isTLSError(err)) || status >= http.StatusInternalServerError
	metrics.RecordFetchAttempt(status, duration, err, retry && attempt < c.opts.Retry.Attempts)

	span.SetAttributes(telemetry.HTTPAttributes(http.MethodGet, route, urlLabel, status)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if status >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(status))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return page, err
}

func (c *Client) roundTrip(hc *http.Client, req *http.Request) (*Page, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, c.opts.MaxBodyBytes)
	body, err := decodeBody(resp.Header.Get("Content-Encoding"), limited)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(io.LimitReader(body, c.opts.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	final := req.URL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &Page{
		URL:      req.URL.String(),
		FinalURL: final,
		Status:   resp.StatusCode,
		Header:   resp.Header,
		Body:     string(data),
	}, nil
}

func (c *Client) applyHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", headerAccept)
	req.Header.Set("Accept-Language", headerAcceptLanguage)
	req.Header.Set("Accept-Encoding", headerAcceptEncoding)
	req.Header.Set("Connection", "keep-alive")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	if c.opts.RatePerHost <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	l, _ := c.limiters.LoadOrCompute(host, func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(c.opts.RatePerHost), c.opts.BurstPerHost)
	})
	return l
}

func (c *Client) insecureAllowed(host string) bool {
	if c.opts.InsecureAllHosts {
		return true
	}
	if _, ok := c.insecureHosts[host]; ok {
		return true
	}
	// Subdomains of a configured host qualify as well.
	for h := range c.insecureHosts {
		if strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (c *Client) backoffFor(attempt int) time.Duration {
	p := c.opts.Retry
	wait := p.Base * time.Duration(1<<attempt)
	if wait > p.Max || wait < 0 {
		wait = p.Max
	}
	if p.Jitter <= 0 || wait <= 0 {
		return wait
	}
	jitter := time.Duration(c.randInt63n(int64(float64(wait)*p.Jitter) + 1))
	return wait + jitter
}

func (c *Client) randInt63n(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Int63n(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTLSError(err error) bool {
	var (
		verr      *tls.CertificateVerificationError
		unknownCA x509.UnknownAuthorityError
		hostErr   x509.HostnameError
		invalid   x509.CertificateInvalidError
	)
	return errors.As(err, &verr) ||
		errors.As(err, &unknownCA) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalid)
}

func normalizeHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return ""
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}

func traceLabels(u *url.URL) (string, string) {
	route := u.Path
	if route == "" {
		route = "/"
	}
	urlLabel := u.Host + route
	if u.RawQuery != "" {
		urlLabel += "?"
	}
	return route, urlLabel
}
