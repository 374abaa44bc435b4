//go:build windows

package cmd

import (
	"context"

	"github.com/livewatch-cli/livewatch/trigger"
)

// watchVisibility only waits for ctx; there are no user signals on Windows.
func watchVisibility(ctx context.Context, _ *trigger.Store) {
	<-ctx.Done()
}
