package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/viper"
	"github.com/xmedia/xmedia/constant"
	"github.com/xmedia/xmedia/key"
)

// Buffering controls how much media the engine keeps ahead of the playhead.
type Buffering struct {
	MinBufferMs                      int64 `json:"min_buffer_ms" jsonschema:"minimum=0"`
	MaxBufferMs                      int64 `json:"max_buffer_ms" jsonschema:"minimum=0"`
	BufferForPlaybackMs              int64 `json:"buffer_for_playback_ms" jsonschema:"minimum=0"`
	BufferForPlaybackAfterRebufferMs int64 `json:"buffer_for_playback_after_rebuffer_ms" jsonschema:"minimum=0"`
}

// Cache configures the shared disk cache. Two values are equal iff all fields match,
// so Cache is used directly as the store's binding key.
type Cache struct {
	Enabled       bool   `json:"enabled"`
	MaxSizeBytes  int64  `json:"max_size_bytes" jsonschema:"minimum=0"`
	Directory     string `json:"directory,omitempty"`
	DirectoryName string `json:"directory_name"`
}

// Selection bounds the adaptive rendition selector. Zero max bounds mean unbounded.
type Selection struct {
	MinDurationForQualityIncreaseMs int64   `json:"min_duration_for_quality_increase_ms"`
	MaxDurationForQualityDecreaseMs int64   `json:"max_duration_for_quality_decrease_ms"`
	MinVideoWidth                   int     `json:"min_video_width"`
	MinVideoHeight                  int     `json:"min_video_height"`
	MaxVideoWidth                   int     `json:"max_video_width"`
	MaxVideoHeight                  int     `json:"max_video_height"`
	MaxVideoBitrate                 int64   `json:"max_video_bitrate"`
	BandwidthFraction               float64 `json:"bandwidth_fraction" jsonschema:"exclusiveMinimum=0"`
	AllowMixedCodecsAdaptiveness    bool    `json:"allow_mixed_codecs_adaptiveness"`
	AllowNonSeamlessAdaptiveness    bool    `json:"allow_non_seamless_adaptiveness"`
	ForceLowestBitrate              bool    `json:"force_lowest_bitrate"`
	ForceHighestSupportedBitrate    bool    `json:"force_highest_supported_bitrate"`
}

// Bandwidth configures the shared bandwidth estimator. Comparable; a change rebuilds the meter.
type Bandwidth struct {
	InitialBitrateEstimate   int64 `json:"initial_bitrate_estimate"`
	UseExperimentalEstimator bool  `json:"use_experimental_estimator"`
	ResetOnNetworkChange     bool  `json:"reset_on_network_change"`
}

// Audio holds audio focus and language preferences.
type Audio struct {
	HandleBecomingNoisy bool   `json:"handle_becoming_noisy"`
	PreferredLanguage   string `json:"preferred_language,omitempty"`
}

// Player aggregates every configuration group an orchestrator is built from.
type Player struct {
	Buffering Buffering `json:"buffering"`
	Cache     Cache     `json:"cache"`
	Selection Selection `json:"selection"`
	Bandwidth Bandwidth `json:"bandwidth"`
	Audio     Audio     `json:"audio"`
}

// Preset names.
const (
	PresetDefault         = "default"
	PresetHighPerformance = "high_performance"
	PresetLowLatency      = "low_latency"
	PresetDataSaver       = "data_saver"
)

const mb = 1024 * 1024

// DefaultPlayer is the balanced preset: moderate buffers, no disk cache.
func DefaultPlayer() Player {
	return Player{
		Buffering: Buffering{
			MinBufferMs:                      50_000,
			MaxBufferMs:                      50_000,
			BufferForPlaybackMs:              2_500,
			BufferForPlaybackAfterRebufferMs: 5_000,
		},
		Cache: Cache{
			Enabled:       false,
			MaxSizeBytes:  100 * mb,
			DirectoryName: constant.DefaultCacheDirectoryName,
		},
		Selection: Selection{
			MinDurationForQualityIncreaseMs: 10_000,
			MaxDurationForQualityDecreaseMs: 25_000,
			BandwidthFraction:               0.7,
		},
		Bandwidth: Bandwidth{
			InitialBitrateEstimate: 1_000_000,
		},
		Audio: Audio{
			HandleBecomingNoisy: true,
		},
	}
}

// HighPerformancePlayer trades memory and disk for fast, high-quality starts.
func HighPerformancePlayer() Player {
	p := DefaultPlayer()
	p.Buffering = Buffering{
		MinBufferMs:                      60_000,
		MaxBufferMs:                      120_000,
		BufferForPlaybackMs:              1_500,
		BufferForPlaybackAfterRebufferMs: 3_000,
	}
	p.Cache.Enabled = true
	p.Cache.MaxSizeBytes = 600 * mb
	p.Selection.BandwidthFraction = 1.1
	p.Bandwidth.InitialBitrateEstimate = 3_000_000
	p.Bandwidth.UseExperimentalEstimator = true
	return p
}

// LowLatencyPlayer keeps buffers short for live content.
func LowLatencyPlayer() Player {
	p := DefaultPlayer()
	p.Buffering = Buffering{
		MinBufferMs:                      5_000,
		MaxBufferMs:                      10_000,
		BufferForPlaybackMs:              1_000,
		BufferForPlaybackAfterRebufferMs: 2_000,
	}
	p.Selection.MinDurationForQualityIncreaseMs = 5_000
	p.Selection.MaxDurationForQualityDecreaseMs = 10_000
	return p
}

// DataSaverPlayer caps quality at 720p / 2 Mbps and keeps a small cache.
func DataSaverPlayer() Player {
	p := DefaultPlayer()
	p.Cache.Enabled = true
	p.Cache.MaxSizeBytes = 50 * mb
	p.Selection.MaxVideoWidth = 1280
	p.Selection.MaxVideoHeight = 720
	p.Selection.MaxVideoBitrate = 2_000_000
	p.Selection.BandwidthFraction = 0.8
	p.Bandwidth.InitialBitrateEstimate = 1_000_000
	return p
}

var presets = map[string]func() Player{
	PresetDefault:         DefaultPlayer,
	PresetHighPerformance: HighPerformancePlayer,
	PresetLowLatency:      LowLatencyPlayer,
	PresetDataSaver:       DataSaverPlayer,
}

// Presets returns the sorted preset names.
func Presets() []string {
	names := lo.Keys(presets)
	sort.Strings(names)
	return names
}

// Preset returns the named preset.
func Preset(name string) (Player, bool) {
	build, ok := presets[name]
	if !ok {
		return Player{}, false
	}
	return build(), true
}

// Load builds a Player from viper. A non-empty player.preset wins over the individual keys.
func Load() (Player, error) {
	if name := viper.GetString(key.Preset); name != "" {
		p, ok := Preset(name)
		if !ok {
			return Player{}, fmt.Errorf("unknown preset %q", name)
		}
		return p, p.Validate()
	}

	p := Player{
		Buffering: Buffering{
			MinBufferMs:                      viper.GetInt64(key.BufferMinMs),
			MaxBufferMs:                      viper.GetInt64(key.BufferMaxMs),
			BufferForPlaybackMs:              viper.GetInt64(key.BufferForPlaybackMs),
			BufferForPlaybackAfterRebufferMs: viper.GetInt64(key.BufferForPlaybackAfterRebufferMs),
		},
		Cache: Cache{
			Enabled:       viper.GetBool(key.CacheEnabled),
			MaxSizeBytes:  viper.GetInt64(key.CacheMaxSizeBytes),
			Directory:     viper.GetString(key.CacheDirectory),
			DirectoryName: viper.GetString(key.CacheDirectoryName),
		},
		Selection: Selection{
			MinDurationForQualityIncreaseMs: viper.GetInt64(key.SelectionMinDurationForQualityIncreaseMs),
			MaxDurationForQualityDecreaseMs: viper.GetInt64(key.SelectionMaxDurationForQualityDecreaseMs),
			MinVideoWidth:                   viper.GetInt(key.SelectionMinVideoWidth),
			MinVideoHeight:                  viper.GetInt(key.SelectionMinVideoHeight),
			MaxVideoWidth:                   viper.GetInt(key.SelectionMaxVideoWidth),
			MaxVideoHeight:                  viper.GetInt(key.SelectionMaxVideoHeight),
			MaxVideoBitrate:                 viper.GetInt64(key.SelectionMaxVideoBitrate),
			BandwidthFraction:               viper.GetFloat64(key.SelectionBandwidthFraction),
			AllowMixedCodecsAdaptiveness:    viper.GetBool(key.SelectionAllowMixedCodecs),
			AllowNonSeamlessAdaptiveness:    viper.GetBool(key.SelectionAllowNonSeamless),
			ForceLowestBitrate:              viper.GetBool(key.SelectionForceLowest),
			ForceHighestSupportedBitrate:    viper.GetBool(key.SelectionForceHighest),
		},
		Bandwidth: Bandwidth{
			InitialBitrateEstimate:   viper.GetInt64(key.BandwidthInitialEstimate),
			UseExperimentalEstimator: viper.GetBool(key.BandwidthUseExperimental),
			ResetOnNetworkChange:     viper.GetBool(key.BandwidthResetOnNetworkChange),
		},
		Audio: Audio{
			HandleBecomingNoisy: viper.GetBool(key.AudioHandleBecomingNoisy),
			PreferredLanguage:   viper.GetString(key.AudioPreferredLanguage),
		},
	}

	return p, p.Validate()
}

// Validate reports the first inconsistency found in p.
func (p Player) Validate() error {
	b := p.Buffering
	if b.MinBufferMs < 0 || b.MaxBufferMs < 0 || b.BufferForPlaybackMs < 0 || b.BufferForPlaybackAfterRebufferMs < 0 {
		return errors.New("buffer durations must not be negative")
	}
	if b.MinBufferMs > b.MaxBufferMs {
		return fmt.Errorf("min buffer %dms exceeds max buffer %dms", b.MinBufferMs, b.MaxBufferMs)
	}
	if p.Cache.Enabled && p.Cache.MaxSizeBytes <= 0 {
		return errors.New("cache is enabled but its max size is not positive")
	}
	if p.Selection.BandwidthFraction <= 0 {
		return errors.New("bandwidth fraction must be positive")
	}
	if p.Selection.ForceLowestBitrate && p.Selection.ForceHighestSupportedBitrate {
		return errors.New("force lowest and force highest bitrate are mutually exclusive")
	}
	return nil
}
