//go:build !windows

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/livewatch-cli/livewatch/log"
	"github.com/livewatch-cli/livewatch/trigger"
)

// watchVisibility lets a window manager or script show and hide the surface:
// SIGUSR1 marks it visible, SIGUSR2 hidden.
func watchVisibility(ctx context.Context, store *trigger.Store) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			visible := sig == syscall.SIGUSR1
			log.Infof("visibility set to %t by %s", visible, sig)
			store.SetVisible(visible)
		}
	}
}
