package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xmedia/xmedia/cache"
	"github.com/xmedia/xmedia/color"
	"github.com/xmedia/xmedia/key"
	"github.com/xmedia/xmedia/style"
	"github.com/xmedia/xmedia/util"
)

func init() {
	rootCmd.AddCommand(precacheCmd)

	precacheCmd.Flags().Int64P("duration-ms", "d", 30_000, "Duration of media to pre-cache per URL, in milliseconds")
	precacheCmd.Flags().IntP("workers", "w", 0, "Concurrent downloads; 0 uses precache.workers")
	precacheCmd.Flags().Int64("rate", -1, "Throughput cap in bytes per second; -1 uses precache.max_bytes_per_second")
}

// precacheCmd downloads the start of each URL into the disk cache.
var precacheCmd = &cobra.Command{
	Use:     "precache [url...]",
	Short:   "Download the beginning of media into the disk cache",
	Args:    cobra.MinimumNArgs(1),
	Example: "  xmedia precache https://example.com/a/master.m3u8 https://example.com/b.mp4 -d 60000",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadPlayer().Cache
		if !cfg.Enabled {
			handleErr(cache.ErrCacheDisabled)
		}

		workers := lo.Must(cmd.Flags().GetInt("workers"))
		if workers <= 0 {
			workers = viper.GetInt(key.PreCacheWorkers)
		}
		rate := lo.Must(cmd.Flags().GetInt64("rate"))
		if rate < 0 {
			rate = viper.GetInt64(key.PreCacheMaxBytesPerSecond)
		}
		durationMs := lo.Must(cmd.Flags().GetInt64("duration-ms"))

		manager := cache.NewManager(workers, rate)
		defer func() { _ = manager.Release() }()

		var (
			mu        sync.Mutex
			bar       = progress.New(progress.WithDefaultGradient(), progress.WithWidth(30))
			failures  int
			eraseLast = func() {}
		)

		report := func(url, line string) {
			mu.Lock()
			defer mu.Unlock()
			eraseLast()
			eraseLast = func() {}
			fmt.Printf("%s %s\n", line, style.Faint(url))
		}

		tasks := lo.Map(args, func(url string, _ int) *cache.Task {
			return manager.PreCache(url, cfg, durationMs, cache.PreCacheCallbacks{
				OnProgress: func(percent float64) {
					mu.Lock()
					defer mu.Unlock()
					eraseLast()
					eraseLast = util.PrintErasable(fmt.Sprintf("%s %s", bar.ViewAs(percent/100), style.Faint(url)))
				},
				OnComplete: func() {
					report(url, style.Success+" cached")
				},
				OnError: func(err error) {
					mu.Lock()
					failures++
					mu.Unlock()
					report(url, fmt.Sprintf("%s %s", style.Fail, style.Fg(color.Red)(err.Error())))
				},
			})
		})

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		defer signal.Stop(interrupt)

		go func() {
			if _, ok := <-interrupt; ok {
				for _, task := range tasks {
					task.Cancel()
				}
			}
		}()

		manager.Wait()
		eraseLast()

		fmt.Printf("%s cache now holds %s\n", style.Fg(color.Cyan)("▇▇▇"), util.FormatBytes(manager.Size()))
		if failures > 0 {
			handleErr(fmt.Errorf("%s failed", util.Quantify(failures, "url", "urls")))
		}
	},
}
