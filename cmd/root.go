// Package cmd implements the command-line interface for xmedia.
package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xmedia/xmedia/color"
	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/constant"
	"github.com/xmedia/xmedia/key"
	"github.com/xmedia/xmedia/log"
	"github.com/xmedia/xmedia/metrics"
	"github.com/xmedia/xmedia/style"
	"github.com/xmedia/xmedia/version"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")

	rootCmd.PersistentFlags().StringP("preset", "p", "", "Use a named configuration preset")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("preset", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return config.Presets(), cobra.ShellCompDirectiveNoFileComp
	}))
	lo.Must0(viper.BindPFlag(key.Preset, rootCmd.PersistentFlags().Lookup("preset")))

	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	lo.Must0(viper.BindPFlag(key.MetricsAddr, rootCmd.PersistentFlags().Lookup("metrics-addr")))

	helpFunc := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helpFunc(cmd, args)
		version.Notify()
	})
}

// rootCmd defines the entry point for the xmedia application.
var rootCmd = &cobra.Command{
	Use:   constant.XMedia,
	Short: "Adaptive streaming playback with a shared disk cache",
	Long: constant.AsciiArtLogo + "\n" +
		style.New().Italic(true).Foreground(color.HiCyan).Render("    - Adaptive streaming playback with a shared disk cache"),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		serveMetrics(viper.GetString(key.MetricsAddr))
	},
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("version") {
			versionCmd.Run(versionCmd, args)
			return
		}

		handleErr(cmd.Help())
	},
}

// Execute initializes child command routing and processes the CLI entry point.
func Execute() {
	if viper.GetBool(key.CliColored) {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// serveMetrics exposes the collectors on addr for the lifetime of the process.
func serveMetrics(addr string) {
	if addr == "" {
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	log.Infof("serving metrics on %s", addr)
}

func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "%s %s\n", style.Fail, strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}

// loadPlayer resolves the player configuration from flags, env and the config file.
func loadPlayer() config.Player {
	p, err := config.Load()
	handleErr(err)
	return p
}
