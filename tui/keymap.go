package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/livewatch-cli/livewatch/color"
	"github.com/livewatch-cli/livewatch/style"
)

// statefulKeymap defines the keyboard interactions available within various application states.
type statefulKeymap struct {
	state state

	quit, forceQuit,
	play, stop,
	visibility,
	mute, volumeUp, volumeDown,
	renderMode,
	quality, auto,
	openURL,
	confirm, back,
	up, down,
	showHelp key.Binding
}

func (k *statefulKeymap) setState(newState state) {
	k.state = newState
}

func newStatefulKeymap() *statefulKeymap {
	return &statefulKeymap{
		quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		forceQuit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+d"),
			key.WithHelp("ctrl+c", "quit"),
		),
		play: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp(style.Fg(color.Orange)("p"), style.Fg(color.Orange)("play")),
		),
		stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop"),
		),
		visibility: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "toggle visibility"),
		),
		mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute/unmute"),
		),
		volumeUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "volume up"),
		),
		volumeDown: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "volume down"),
		),
		renderMode: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "render mode"),
		),
		quality: key.NewBinding(
			key.WithKeys("Q", "tab"),
			key.WithHelp("Q", "quality"),
		),
		auto: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "auto quality"),
		),
		openURL: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open source"),
		),
		confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑", "up"),
		),
		down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓", "down"),
		),
		showHelp: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

func (k *statefulKeymap) help() ([]key.Binding, []key.Binding) {
	h := func(bindings ...key.Binding) []key.Binding {
		return bindings
	}

	to2 := func(a []key.Binding) ([]key.Binding, []key.Binding) {
		return a, a
	}

	switch k.state {
	case statusState:
		return h(k.play, k.stop, k.quality, k.showHelp, k.quit),
			h(k.play, k.stop, k.visibility, k.mute, k.volumeUp, k.volumeDown, k.renderMode, k.quality, k.auto, k.openURL, k.quit)
	case qualityState:
		return to2(h(k.confirm, k.auto, k.back))
	case errorState:
		return to2(h(k.back, k.quit))
	default:
		return to2(h())
	}
}

func (k *statefulKeymap) ShortHelp() []key.Binding {
	short, _ := k.help()
	return short
}

func (k *statefulKeymap) FullHelp() [][]key.Binding {
	_, full := k.help()
	return [][]key.Binding{full}
}

func (k *statefulKeymap) forList() list.KeyMap {
	return list.KeyMap{
		CursorUp:             k.up,
		CursorDown:           k.down,
		CancelWhileFiltering: k.back,
		AcceptWhileFiltering: k.confirm,
		Quit:                 k.quit,
		ForceQuit:            k.forceQuit,
	}
}
