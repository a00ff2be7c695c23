package cmd

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/xmedia/xmedia/cache"
	"github.com/xmedia/xmedia/color"
	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/style"
	"github.com/xmedia/xmedia/util"
)

func init() {
	rootCmd.AddCommand(cacheCmd)
}

// cacheCmd groups disk cache maintenance.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the media disk cache",
}

// openCache opens the configured store regardless of whether playback caching is enabled.
func openCache() (*cache.Manager, config.Cache) {
	cfg := loadPlayer().Cache
	cfg.Enabled = true
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = config.DefaultPlayer().Cache.MaxSizeBytes
	}

	manager := cache.NewManager(1, 0)
	_, err := manager.GetOrCreate(cfg)
	handleErr(err)
	return manager, cfg
}

func init() {
	cacheCmd.AddCommand(cacheSizeCmd)
	cacheSizeCmd.Flags().BoolP("bytes", "b", false, "Print the raw number of bytes")
}

var cacheSizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Display how much media the cache holds",
	Run: func(cmd *cobra.Command, args []string) {
		manager, cfg := openCache()
		defer func() { _ = manager.Release() }()

		size := manager.Size()
		if lo.Must(cmd.Flags().GetBool("bytes")) {
			cmd.Println(size)
			return
		}

		cmd.Printf("%s of %s in %s\n",
			style.Bold(util.FormatBytes(size)),
			util.FormatBytes(cfg.MaxSizeBytes),
			style.Fg(color.Yellow)(cache.Directory(cfg)),
		)
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheClearCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached media entry",
	Run: func(cmd *cobra.Command, args []string) {
		manager, cfg := openCache()
		defer func() { _ = manager.Release() }()

		if !lo.Must(cmd.Flags().GetBool("yes")) {
			confirm := survey.Confirm{
				Message: fmt.Sprintf("Delete %s of cached media?", util.FormatBytes(manager.Size())),
				Default: false,
			}
			var response bool
			handleErr(survey.AskOne(&confirm, &response))

			if !response {
				return
			}
		}

		e := util.PrintErasable(fmt.Sprintf("%s Clearing %s...", style.Progress, cache.Directory(cfg)))
		err := manager.Clear()
		e()
		handleErr(err)

		fmt.Printf("%s Cache cleared\n", style.Success)
	},
}
