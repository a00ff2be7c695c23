package cmd

import (
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xmedia/xmedia/key"
	"github.com/xmedia/xmedia/playback"
	"github.com/xmedia/xmedia/tui"
)

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().IntP("quality", "q", 0, "Pin the rendition with this height once known, e.g. 720")
	playCmd.Flags().Int64P("max-bitrate", "b", 0, "Pick the tallest rendition within this bitrate, in bits per second")
	playCmd.Flags().BoolP("repeat", "r", false, "Loop the media")
	playCmd.Flags().Float64("volume", 1, "Initial volume between 0 and 1")
	playCmd.Flags().StringSliceP("next", "n", nil, "Media to pre-cache in the background while playing")
	playCmd.Flags().Int64("precache-ms", 30_000, "Duration of each --next entry to pre-cache, in milliseconds")
	playCmd.MarkFlagsMutuallyExclusive("quality", "max-bitrate")
}

// playCmd plays a single media URL in the terminal UI.
var playCmd = &cobra.Command{
	Use:     "play [url]",
	Short:   "Play a progressive, HLS, DASH or local media URL",
	Args:    cobra.ExactArgs(1),
	Example: "  xmedia play https://example.com/stream/master.m3u8 --quality 720",
	Run: func(cmd *cobra.Command, args []string) {
		binary := viper.GetString(key.EngineBinary)
		CheckDependencies(binary)

		shared := playback.NewShared(viper.GetInt(key.PreCacheWorkers), viper.GetInt64(key.PreCacheMaxBytesPerSecond))
		defer func() { _ = shared.Cache.Release() }()

		options := tui.Options{
			URL:        args[0],
			Player:     loadPlayer(),
			Shared:     shared,
			Binary:     binary,
			Quality:    lo.Must(cmd.Flags().GetInt("quality")),
			MaxBitrate: lo.Must(cmd.Flags().GetInt64("max-bitrate")),
			Repeat:     lo.Must(cmd.Flags().GetBool("repeat")),
			Volume:     lo.Must(cmd.Flags().GetFloat64("volume")),
			Next:       lo.Must(cmd.Flags().GetStringSlice("next")),
			PreCacheMs: lo.Must(cmd.Flags().GetInt64("precache-ms")),
		}

		handleErr(tui.Run(&options))
	},
}
