package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/livewatch-cli/livewatch/open"
	"github.com/livewatch-cli/livewatch/player"
	"github.com/livewatch-cli/livewatch/quality"
	"github.com/livewatch-cli/livewatch/util"
)

type (
	tickMsg    time.Time
	refreshMsg struct{}
)

// Init starts the refresh ticker and the activity feed.
func (b *statefulBubble) Init() tea.Cmd {
	return tea.Batch(b.spinnerC.Tick, tick(), b.waitForEvent())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (b *statefulBubble) waitForEvent() tea.Cmd {
	if b.events == nil {
		return nil
	}

	return func() tea.Msg {
		ev, ok := <-b.events
		if !ok {
			return nil
		}
		return ev
	}
}

// call runs fn off the update loop and refreshes the view once it returns.
func (b *statefulBubble) call(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return err
		}
		return refreshMsg{}
	}
}

func (b *statefulBubble) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		b.refresh()
		return b, tick()
	case refreshMsg:
		b.refresh()
		return b, nil
	case Event:
		b.pushEvent(msg)
		b.refresh()
		return b, b.waitForEvent()
	case error:
		b.raiseError(msg)
		return b, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		b.spinnerC, cmd = b.spinnerC.Update(msg)
		return b, cmd
	case tea.WindowSizeMsg:
		b.resize(msg.Width, msg.Height)
		return b, nil
	case tea.KeyMsg:
		if key.Matches(msg, b.keymap.forceQuit) {
			return b, tea.Quit
		}

		switch b.state {
		case statusState:
			return b.updateStatus(msg)
		case qualityState:
			return b.updateQuality(msg)
		case errorState:
			return b.updateError(msg)
		}
	}

	return b, nil
}

func (b *statefulBubble) updateStatus(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, b.keymap.quit):
		return b, tea.Quit
	case key.Matches(msg, b.keymap.play):
		return b, b.call(b.ctrl.RequestPlay)
	case key.Matches(msg, b.keymap.stop):
		return b, b.call(b.ctrl.RequestStop)
	case key.Matches(msg, b.keymap.visibility):
		store := b.triggers
		if store == nil {
			return b, nil
		}
		return b, b.call(func() error {
			store.SetVisible(!store.Load().Visible)
			return nil
		})
	case key.Matches(msg, b.keymap.mute):
		b.muted = !b.muted
		if b.muted {
			return b, b.call(b.ctrl.Mute)
		}
		return b, b.unmute()
	case key.Matches(msg, b.keymap.volumeUp):
		return b, b.changeVolume(volumeStep)
	case key.Matches(msg, b.keymap.volumeDown):
		return b, b.changeVolume(-volumeStep)
	case key.Matches(msg, b.keymap.renderMode):
		b.renderMode = (b.renderMode + 1) % (player.RenderFill + 1)
		mode := b.renderMode
		return b, b.call(func() error { return b.ctrl.SetRenderMode(mode) })
	case key.Matches(msg, b.keymap.quality):
		cmd := b.qualityC.SetItems(b.qualityItems())
		for i, item := range b.qualityC.Items() {
			if item.(*listItem).active {
				b.qualityC.Select(i)
			}
		}
		b.setState(qualityState)
		return b, cmd
	case key.Matches(msg, b.keymap.auto):
		return b, b.selectQuality(quality.Auto(b.status.Selection.Tier))
	case key.Matches(msg, b.keymap.openURL):
		url := b.status.URL
		if url == "" {
			return b, nil
		}
		return b, b.call(func() error { return open.Start(url) })
	case key.Matches(msg, b.keymap.showHelp):
		b.helpC.ShowAll = !b.helpC.ShowAll
	}

	return b, nil
}

func (b *statefulBubble) updateQuality(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, b.keymap.back):
		b.setState(statusState)
		return b, nil
	case key.Matches(msg, b.keymap.auto):
		b.setState(statusState)
		return b, b.selectQuality(quality.Auto(b.status.Selection.Tier))
	case key.Matches(msg, b.keymap.confirm):
		item, ok := b.qualityC.SelectedItem().(*listItem)
		b.setState(statusState)
		if !ok {
			return b, nil
		}
		return b, b.selectQuality(quality.Manual(item.tier))
	}

	var cmd tea.Cmd
	b.qualityC, cmd = b.qualityC.Update(msg)
	return b, cmd
}

func (b *statefulBubble) updateError(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, b.keymap.back):
		b.lastError = nil
		b.setState(statusState)
	case key.Matches(msg, b.keymap.quit):
		return b, tea.Quit
	}
	return b, nil
}

func (b *statefulBubble) selectQuality(sel quality.Selection) tea.Cmd {
	return b.call(func() error { return b.ctrl.SelectQuality(sel) })
}

func (b *statefulBubble) unmute() tea.Cmd {
	user, master, onVolume := b.userVolume, b.masterVolume, b.onVolume
	return b.call(func() error {
		if onVolume != nil {
			onVolume(user, master)
		}
		return b.ctrl.ResumeWithVolume(user, master)
	})
}

func (b *statefulBubble) changeVolume(delta float64) tea.Cmd {
	b.userVolume = util.Clamp(b.userVolume+delta, 0, 1)
	if b.muted {
		return nil
	}
	return b.unmute()
}
