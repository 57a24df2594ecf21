// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daddylive_resolutions_total",
		Help: "Channel resolutions by how the manifest was found",
	}, []string{"via"}) // via=direct|iframe|cache|fallback|failed

	resolutionsInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "daddylive_resolutions_inflight",
		Help: "Channel resolutions currently running",
	})

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "daddylive_cache_entries",
		Help: "Entries in the resolution cache after the last run",
	})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daddylive_cache_lookups_total",
		Help: "Resolution cache lookups by result",
	}, []string{"result"}) // result=hit|miss

	lastRunChannels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "daddylive_last_run_channels",
		Help: "Channels written in the last run, by resolution path",
	}, []string{"via"})

	refreshFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daddylive_refresh_failures_total",
		Help: "Total number of refresh failures by stage",
	}, []string{"stage"}) // stage=catalog|cache_load|cache_persist|write_m3u

	refreshDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "daddylive_refresh_duration_seconds",
		Help:    "Wall time of a full refresh run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

func IncResolution(via string) { resolutionsTotal.WithLabelValues(via).Inc() }

// TrackInflight increments the in-flight gauge and returns its decrement.
func TrackInflight() func() {
	resolutionsInflight.Inc()
	return resolutionsInflight.Dec
}

func RecordCacheEntries(n int) { cacheEntries.Set(float64(n)) }

func IncCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

// RecordRun publishes the per-path counts of the last run.
func RecordRun(direct, hop, cached, fallback int, seconds float64) {
	lastRunChannels.WithLabelValues("direct").Set(float64(direct))
	lastRunChannels.WithLabelValues("iframe").Set(float64(hop))
	lastRunChannels.WithLabelValues("cache").Set(float64(cached))
	lastRunChannels.WithLabelValues("fallback").Set(float64(fallback))
	refreshDurationSeconds.Observe(seconds)
}

func IncRefreshFailure(stage string) { refreshFailuresTotal.WithLabelValues(stage).Inc() }
