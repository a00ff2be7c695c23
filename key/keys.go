// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Preset selection - names one of the built-in configuration bundles.
const (
	Preset = "player.preset"
)

// Buffering - these keys control how much media the engine keeps ahead of the playhead.
const (
	BufferMinMs                      = "buffer.min_ms"
	BufferMaxMs                      = "buffer.max_ms"
	BufferForPlaybackMs              = "buffer.for_playback_ms"
	BufferForPlaybackAfterRebufferMs = "buffer.for_playback_after_rebuffer_ms"
)

// Disk cache - these keys govern the shared LRU media cache.
const (
	CacheEnabled       = "cache.enabled"
	CacheMaxSizeBytes  = "cache.max_size_bytes"
	CacheDirectory     = "cache.directory"
	CacheDirectoryName = "cache.directory_name"
)

// Rendition selection - these keys bound the adaptive track selector.
const (
	SelectionMinDurationForQualityIncreaseMs = "selection.min_duration_for_quality_increase_ms"
	SelectionMaxDurationForQualityDecreaseMs = "selection.max_duration_for_quality_decrease_ms"
	SelectionMinVideoWidth                   = "selection.min_video_width"
	SelectionMinVideoHeight                  = "selection.min_video_height"
	SelectionMaxVideoWidth                   = "selection.max_video_width"
	SelectionMaxVideoHeight                  = "selection.max_video_height"
	SelectionMaxVideoBitrate                 = "selection.max_video_bitrate"
	SelectionBandwidthFraction               = "selection.bandwidth_fraction"
	SelectionAllowMixedCodecs                = "selection.allow_mixed_codecs"
	SelectionAllowNonSeamless                = "selection.allow_non_seamless"
	SelectionForceLowest                     = "selection.force_lowest"
	SelectionForceHighest                    = "selection.force_highest"
)

// Bandwidth estimation - these keys configure the shared bandwidth meter.
const (
	BandwidthInitialEstimate      = "bandwidth.initial_estimate"
	BandwidthUseExperimental      = "bandwidth.use_experimental"
	BandwidthResetOnNetworkChange = "bandwidth.reset_on_network_change"
)

// Audio - these keys manage audio focus and language preferences.
const (
	AudioHandleBecomingNoisy = "audio.handle_becoming_noisy"
	AudioPreferredLanguage   = "audio.preferred_language"
)

// Pre-cache - these keys tune background segment pre-fetching.
const (
	PreCacheWorkers           = "precache.workers"
	PreCacheMaxBytesPerSecond = "precache.max_bytes_per_second"
)

// Media engine - these keys select and locate the external playback engine.
const (
	EngineBinary = "engine.binary"
)

// Metrics - these keys expose the Prometheus collectors over HTTP.
const (
	MetricsAddr = "metrics.addr"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics and auditing system.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these flags and settings govern the non-TUI application behavior.
const (
	CliColored      = "cli.colored"
	CliVersionCheck = "cli.version_check"
)
