// Package tui provides the live status dashboard of the watch command.
package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/livewatch-cli/livewatch/icon"
	"github.com/livewatch-cli/livewatch/lifecycle"
	"github.com/livewatch-cli/livewatch/player"
	"github.com/livewatch-cli/livewatch/quality"
	"github.com/livewatch-cli/livewatch/trigger"
)

// Controller is the part of lifecycle.Controller the dashboard drives.
type Controller interface {
	Status() lifecycle.Status
	RequestPlay() error
	RequestStop() error
	SelectQuality(sel quality.Selection) error
	Mute() error
	ResumeWithVolume(user, master float64) error
	SetRenderMode(m player.RenderMode) error
}

// Event is a line in the dashboard's activity feed.
type Event struct {
	Icon icon.Icon
	Text string
}

// Options encapsulates the runtime configuration for the terminal user interface.
type Options struct {
	Stream     string
	Controller Controller
	Triggers   *trigger.Store
	Sources    quality.Sources
	RenderMode player.RenderMode

	UserVolume   float64
	MasterVolume float64
	Muted        bool

	// OnVolume is called with the volumes about to be applied after an unmute or a volume change.
	OnVolume func(user, master float64)

	// Events feeds the activity log. It may be nil.
	Events <-chan Event
}

// Run blocks until the user quits or ctx is done.
func Run(ctx context.Context, options *Options) error {
	bubble := newBubble(options)

	_, err := tea.NewProgram(bubble, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
