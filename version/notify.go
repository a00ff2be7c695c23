// Package version provides unified mechanisms for application version tracking, update discovery, and compatibility validation.
package version

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/xmedia/xmedia/color"
	"github.com/xmedia/xmedia/constant"
	"github.com/xmedia/xmedia/key"
	"github.com/xmedia/xmedia/style"
	"github.com/xmedia/xmedia/util"
)

// Notify displays a terminal alert if a more recent stable application version is available.
func Notify() {
	if !viper.GetBool(key.CliVersionCheck) || !util.IsTerminal() {
		return
	}

	erase := util.PrintErasable(fmt.Sprintf("%s Checking if new version is available...", style.Progress))
	version, err := Latest()
	erase()
	if err != nil {
		return
	}

	if comp, err := Compare(version, constant.Version); err != nil || comp <= 0 {
		return
	}

	fmt.Printf(`
%s New version is available %s %s
%s

`,
		style.Fg(color.Green)("▇▇▇"),
		style.Bold(version),
		style.Faint(fmt.Sprintf("(You're on %s)", constant.Version)),
		style.Faint(constant.ReleasesPage+"/tag/v"+version),
	)
}
