// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daddylive_fetch_requests_total",
		Help: "Total number of upstream HTTP request attempts",
	}, []string{"status_class"})

	fetchRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "daddylive_fetch_request_duration_seconds",
		Help:    "Duration of upstream HTTP requests per attempt",
		Buckets: prometheus.ExponentialBuckets(0.05, 2.0, 10),
	}, []string{"status_class"})

	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daddylive_fetch_retries_total",
		Help: "Number of upstream request retries performed",
	}, []string{"status_class"})

	fetchBlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daddylive_fetch_blocked_total",
		Help: "Responses classified as block or challenge pages",
	})

	fetchTLSFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daddylive_fetch_tls_fallback_total",
		Help: "Insecure TLS fallback attempts by outcome",
	}, []string{"outcome"}) // outcome=success|failure
)

// StatusClass buckets an HTTP status for labelling.
func StatusClass(err error, status int) string {
	if err != nil {
		return "error"
	}
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status > 0:
		return "1xx"
	}
	return "unknown"
}

// RecordFetchAttempt records a single HTTP attempt.
func RecordFetchAttempt(status int, duration time.Duration, err error, retry bool) {
	class := StatusClass(err, status)
	fetchRequestsTotal.WithLabelValues(class).Inc()
	fetchRequestDuration.WithLabelValues(class).Observe(duration.Seconds())
	if retry {
		fetchRetriesTotal.WithLabelValues(class).Inc()
	}
}

func IncFetchBlocked() { fetchBlockedTotal.Inc() }

func IncTLSFallback(ok bool) {
	if ok {
		fetchTLSFallbackTotal.WithLabelValues("success").Inc()
		return
	}
	fetchTLSFallbackTotal.WithLabelValues("failure").Inc()
}
