package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"

	"github.com/samber/lo"
	"github.com/spf13/viper"
	"github.com/xmedia/xmedia/color"
	"github.com/xmedia/xmedia/constant"
	"github.com/xmedia/xmedia/key"
	"github.com/xmedia/xmedia/style"
)

// Field represents a configuration field definition.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Pretty returns a colored string representation of the field for display.
func (f *Field) Pretty() string {
	var b strings.Builder
	lo.Must0(prettyTemplate.Execute(&b, f))
	return b.String()
}

// Env returns the environment variable name for this field.
func (f *Field) Env() string {
	env := strings.ToUpper(EnvKeyReplacer.Replace(f.Key))
	prefix := strings.ToUpper(constant.XMedia + "_")
	if strings.HasPrefix(env, prefix) {
		return env
	}
	return prefix + env
}

// MarshalJSON customizes JSON output to include current and default values.
func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key         string `json:"key"`
		Value       any    `json:"value"`
		Default     any    `json:"default"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}{
		Key:         f.Key,
		Value:       viper.Get(f.Key),
		Default:     f.Value,
		Description: f.Description,
		Type:        f.typeName(),
	})
}

func (f *Field) typeName() string {
	switch f.Value.(type) {
	case string:
		return "string"
	case int:
		return "int"
	case int64:
		return "int64"
	case float64:
		return "float64"
	case bool:
		return "bool"
	default:
		return "unknown"
	}
}

// Default holds the map of all configuration fields.
var Default = make(map[string]Field)

// EnvExposed holds keys that are bound to environment variables.
var EnvExposed []string

func init() {
	register := func(k string, v any, desc string) {
		if _, exists := Default[k]; exists {
			panic("Duplicate config key: " + k)
		}
		Default[k] = Field{Key: k, Value: v, Description: desc}
		EnvExposed = append(EnvExposed, k)
	}

	d := DefaultPlayer()

	register(key.Preset, "", "Named preset to use instead of the individual keys.\nAvailable options are: default, high_performance, low_latency, data_saver")

	register(key.BufferMinMs, d.Buffering.MinBufferMs, "Minimum media duration the engine tries to keep buffered, in milliseconds")
	register(key.BufferMaxMs, d.Buffering.MaxBufferMs, "Maximum media duration the engine buffers ahead, in milliseconds")
	register(key.BufferForPlaybackMs, d.Buffering.BufferForPlaybackMs, "Buffered duration required to start playback, in milliseconds")
	register(key.BufferForPlaybackAfterRebufferMs, d.Buffering.BufferForPlaybackAfterRebufferMs, "Buffered duration required to resume after a stall, in milliseconds")

	register(key.CacheEnabled, d.Cache.Enabled, "Cache media segments on disk")
	register(key.CacheMaxSizeBytes, d.Cache.MaxSizeBytes, "Upper bound of the disk cache, in bytes.\nLeast recently used entries are evicted beyond it")
	register(key.CacheDirectory, d.Cache.Directory, "Absolute cache directory.\nEmpty means a subdirectory of the user cache directory")
	register(key.CacheDirectoryName, d.Cache.DirectoryName, "Name of the cache subdirectory used when no directory is set")

	register(key.SelectionMinDurationForQualityIncreaseMs, d.Selection.MinDurationForQualityIncreaseMs, "Buffered duration required before switching up, in milliseconds. Ignored by mpv, which does not switch mid-stream")
	register(key.SelectionMaxDurationForQualityDecreaseMs, d.Selection.MaxDurationForQualityDecreaseMs, "Buffered duration below which switching down is allowed, in milliseconds. Ignored by mpv, which does not switch mid-stream")
	register(key.SelectionMinVideoWidth, d.Selection.MinVideoWidth, "Minimum video width to select. 0 disables the bound")
	register(key.SelectionMinVideoHeight, d.Selection.MinVideoHeight, "Minimum video height to select. 0 disables the bound")
	register(key.SelectionMaxVideoWidth, d.Selection.MaxVideoWidth, "Maximum video width to select. 0 disables the bound")
	register(key.SelectionMaxVideoHeight, d.Selection.MaxVideoHeight, "Maximum video height to select. 0 disables the bound")
	register(key.SelectionMaxVideoBitrate, d.Selection.MaxVideoBitrate, "Maximum video bitrate to select, in bits per second. 0 disables the bound")
	register(key.SelectionBandwidthFraction, d.Selection.BandwidthFraction, "Fraction of the bandwidth estimate the selector may use")
	register(key.SelectionAllowMixedCodecs, d.Selection.AllowMixedCodecsAdaptiveness, "Allow adaptation between renditions of different codecs. Ignored by mpv")
	register(key.SelectionAllowNonSeamless, d.Selection.AllowNonSeamlessAdaptiveness, "Allow adaptation that may cause a visible discontinuity. Ignored by mpv")
	register(key.SelectionForceLowest, d.Selection.ForceLowestBitrate, "Always select the lowest bitrate rendition")
	register(key.SelectionForceHighest, d.Selection.ForceHighestSupportedBitrate, "Always select the highest supported bitrate rendition")

	register(key.BandwidthInitialEstimate, d.Bandwidth.InitialBitrateEstimate, "Bandwidth estimate used before any measurement, in bits per second")
	register(key.BandwidthUseExperimental, d.Bandwidth.UseExperimentalEstimator, "Use the dual-EWMA bandwidth estimator instead of the sliding median")
	register(key.BandwidthResetOnNetworkChange, d.Bandwidth.ResetOnNetworkChange, "Drop the bandwidth estimate when the network changes")

	register(key.AudioHandleBecomingNoisy, d.Audio.HandleBecomingNoisy, "Pause when the audio output becomes noisy (e.g. headphones unplugged). Ignored by mpv")
	register(key.AudioPreferredLanguage, d.Audio.PreferredLanguage, "Preferred audio language as an ISO 639 code")

	register(key.PreCacheWorkers, 2, "Number of concurrent pre-cache downloads")
	register(key.PreCacheMaxBytesPerSecond, int64(0), "Pre-cache throughput cap, in bytes per second. 0 disables the cap")

	register(key.EngineBinary, "mpv", "Media engine executable")

	register(key.LogsWrite, false, "Write logs")
	register(key.LogsLevel, "info", "Available options are: (from less to most verbose)\npanic, fatal, error, warn, info, debug, trace")
	register(key.LogsJson, false, "Use json format for logs")
	register(key.CliColored, true, "Enable colored CLI output")
	register(key.CliVersionCheck, true, "Check for a newer release when printing help or version")
	register(key.MetricsAddr, "", "Address to serve Prometheus metrics on, e.g. 127.0.0.1:9090.\nEmpty disables the endpoint")
}

var prettyTemplate = lo.Must(template.New("pretty").Funcs(template.FuncMap{
	"faint":    style.Faint,
	"bold":     style.Bold,
	"purple":   style.Fg(color.Purple),
	"blue":     style.Fg(color.Blue),
	"cyan":     style.Fg(color.Cyan),
	"value":    func(k string) any { return viper.Get(k) },
	"typename": func(v any) string { return reflect.TypeOf(v).String() },
	"hl": func(v any) string {
		switch value := v.(type) {
		case bool:
			b := strconv.FormatBool(value)
			if value {
				return style.Fg(color.Green)(b)
			}
			return style.Fg(color.Red)(b)
		case string:
			return style.Fg(color.Yellow)(value)
		default:
			return fmt.Sprint(value)
		}
	},
}).Parse(`{{ faint .Description }}
{{ blue "Key:" }}     {{ purple .Key }}
{{ blue "Env:" }}     {{ .Env }}
{{ blue "Value:" }}   {{ hl (value .Key) }}
{{ blue "Default:" }} {{ hl (.Value) }}
{{ blue "Type:" }}    {{ typename .Value }}`))
