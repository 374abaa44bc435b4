package tui

import (
	"fmt"

	"github.com/livewatch-cli/livewatch/quality"
	"github.com/livewatch-cli/livewatch/style"
)

// listItem implements the list.Item interface for one quality tier.
type listItem struct {
	tier   quality.Tier
	url    string
	active bool
}

func (t *listItem) Title() string {
	title := fmt.Sprintf("Tier %d", t.tier)
	if t.active {
		title += " " + style.Fg(style.AccentColor)("(active)")
	}
	return title
}

func (t *listItem) Description() string {
	return style.Faint(t.url)
}

func (t *listItem) FilterValue() string {
	return fmt.Sprintf("%d", t.tier)
}
