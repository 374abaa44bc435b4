package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/livewatch-cli/livewatch/lifecycle"
	"github.com/livewatch-cli/livewatch/player"
	"github.com/livewatch-cli/livewatch/quality"
	"github.com/livewatch-cli/livewatch/style"
	"github.com/livewatch-cli/livewatch/trigger"
	"github.com/samber/lo"
)

const (
	refreshInterval = 250 * time.Millisecond
	volumeStep      = 0.1
	maxEvents       = 6
)

// statefulBubble is the dashboard model. Controller calls run as commands so the view never blocks on a teardown.
type statefulBubble struct {
	state  state
	keymap *statefulKeymap

	spinnerC spinner.Model
	qualityC list.Model
	helpC    help.Model

	ctrl     Controller
	triggers *trigger.Store
	sources  quality.Sources
	stream   string
	events   <-chan Event

	status   lifecycle.Status
	snapshot trigger.Snapshot
	feed     []Event

	renderMode   player.RenderMode
	userVolume   float64
	masterVolume float64
	muted        bool
	onVolume     func(user, master float64)

	lastError     error
	width, height int
}

func (b *statefulBubble) raiseError(err error) {
	b.lastError = err
	b.setState(errorState)
}

func (b *statefulBubble) setState(s state) {
	b.state = s
	b.keymap.setState(s)
}

func (b *statefulBubble) resize(width, height int) {
	x, y := paddingStyle.GetFrameSize()
	xx, yy := listExtraPaddingStyle.GetFrameSize()

	b.qualityC.SetSize(width-xx, height-yy)
	b.qualityC.Help.Width = width - xx

	b.width = width - x
	b.height = height - y
	b.helpC.Width = width - xx
}

func (b *statefulBubble) pushEvent(ev Event) {
	b.feed = append(b.feed, ev)
	if len(b.feed) > maxEvents {
		b.feed = b.feed[len(b.feed)-maxEvents:]
	}
}

// refresh pulls the controller and trigger state the view renders from.
func (b *statefulBubble) refresh() {
	b.status = b.ctrl.Status()
	if b.triggers != nil {
		b.snapshot = b.triggers.Load()
	}
}

// qualityItems lists every tier, marking the one playing.
func (b *statefulBubble) qualityItems() []list.Item {
	return lo.Map(b.sources.Tiers(), func(t quality.Tier, _ int) list.Item {
		url, _ := b.sources.Resolve(t)
		return &listItem{tier: t, url: url, active: t == b.status.Selection.Tier}
	})
}

func newBubble(options *Options) *statefulBubble {
	keymap := newStatefulKeymap()
	bubble := &statefulBubble{
		keymap:       keymap,
		ctrl:         options.Controller,
		triggers:     options.Triggers,
		sources:      options.Sources,
		stream:       options.Stream,
		events:       options.Events,
		renderMode:   options.RenderMode,
		userVolume:   options.UserVolume,
		masterVolume: options.MasterVolume,
		muted:        options.Muted,
		onVolume:     options.OnVolume,
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = lipgloss.NewStyle().
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(style.AccentColor).
		Foreground(style.AccentColor).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.Foreground(lipgloss.Color("7"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedTitle

	bubble.qualityC = list.New([]list.Item{}, delegate, 0, 0)
	bubble.qualityC.KeyMap = keymap.forList()
	bubble.qualityC.AdditionalShortHelpKeys = keymap.ShortHelp
	bubble.qualityC.Title = "Quality"
	bubble.qualityC.Styles.Title = lipgloss.NewStyle().Foreground(style.Base).Background(style.AccentColor).Padding(0, 1)
	bubble.qualityC.Styles.NoItems = paddingStyle
	bubble.qualityC.SetShowPagination(false)
	bubble.qualityC.SetShowStatusBar(false)
	bubble.qualityC.SetFilteringEnabled(false)

	bubble.helpC = help.New()

	bubble.spinnerC = spinner.New()
	bubble.spinnerC.Spinner = spinner.Dot
	bubble.spinnerC.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	bubble.setState(statusState)
	bubble.refresh()
	return bubble
}
