// Package main is the entry point for the xmedia application.
package main

import (
	"github.com/samber/lo"
	"github.com/xmedia/xmedia/cmd"
	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/log"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
