// Package metrics holds the Prometheus collectors for playback, cache and bandwidth.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmedia/xmedia/constant"
)

var (
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: constant.XMedia,
		Name:      "cache_hits_total",
		Help:      "Total number of media resources served from the disk cache.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: constant.XMedia,
		Name:      "cache_misses_total",
		Help:      "Total number of media resources fetched upstream by the caching data path.",
	})

	CacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: constant.XMedia,
		Name:      "cache_evictions_total",
		Help:      "Total number of entries evicted from the disk cache.",
	})

	CacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: constant.XMedia,
		Name:      "cache_size_bytes",
		Help:      "Current total size of the disk cache in bytes.",
	})

	BandwidthEstimateBps = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: constant.XMedia,
		Name:      "bandwidth_estimate_bps",
		Help:      "Last bandwidth estimate in bits per second.",
	})

	TransferredBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: constant.XMedia,
		Name:      "transferred_bytes_total",
		Help:      "Total bytes observed by the bandwidth meter.",
	})

	PlaybackErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: constant.XMedia,
		Name:      "playback_errors_total",
		Help:      "Total playback errors by kind.",
	}, []string{"kind"})

	PreCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: constant.XMedia,
		Name:      "precache_total",
		Help:      "Total pre-cache tasks by outcome.",
	}, []string{"outcome"})

	PreCacheBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: constant.XMedia,
		Name:      "precache_bytes_total",
		Help:      "Total bytes downloaded by pre-cache tasks.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEvictionsTotal,
		CacheSizeBytes,
		BandwidthEstimateBps,
		TransferredBytesTotal,
		PlaybackErrorsTotal,
		PreCacheTotal,
		PreCacheBytesTotal,
	)
}
