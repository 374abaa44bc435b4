// Package main is the entry point for the livewatch application.
package main

import (
	"github.com/livewatch-cli/livewatch/cmd"
	"github.com/livewatch-cli/livewatch/config"
	"github.com/livewatch-cli/livewatch/freeze"
	"github.com/livewatch-cli/livewatch/key"
	"github.com/livewatch-cli/livewatch/log"
	"github.com/livewatch-cli/livewatch/where"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	go freeze.CollectGarbage(where.Snapshots(), viper.GetDuration(key.SnapshotTTL))

	cmd.Execute()
}
