package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/livewatch-cli/livewatch/color"
	"github.com/livewatch-cli/livewatch/constant"
	"github.com/livewatch-cli/livewatch/icon"
	"github.com/livewatch-cli/livewatch/lifecycle"
	"github.com/livewatch-cli/livewatch/style"
	"github.com/muesli/reflow/wrap"
	"github.com/samber/lo"
)

var (
	listExtraPaddingStyle = lipgloss.NewStyle().Padding(1, 2, 1, 0)
	paddingStyle          = lipgloss.NewStyle().Padding(1, 2)
	labelStyle            = lipgloss.NewStyle().Foreground(style.Subtext).Width(10)
)

func (b *statefulBubble) View() string {
	switch b.state {
	case statusState:
		return b.viewStatus()
	case qualityState:
		return listExtraPaddingStyle.Render(b.qualityC.View())
	case errorState:
		return b.viewError()
	default:
		return "Unknown state"
	}
}

// stateBadge renders the controller state with its icon and color.
func stateBadge(st lifecycle.Status) string {
	var (
		i  icon.Icon
		fg lipgloss.Color
	)

	switch st.State {
	case lifecycle.StateSteady:
		i, fg = icon.Play, style.SuccessColor
	case lifecycle.StateRetryWait:
		i, fg = icon.Retry, style.WarningColor
	case lifecycle.StateHalted:
		i, fg = icon.Halt, style.ErrorColor
	case lifecycle.StateIdle:
		i, fg = icon.Stop, style.FaintColor
	default:
		i, fg = icon.Play, style.SecondaryColor
	}

	return style.New().Bold(true).Foreground(fg).Render(icon.Get(i) + " " + strings.ReplaceAll(st.State.String(), "_", " "))
}

func percent(v float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(v*100)))
}

func (b *statefulBubble) viewStatus() string {
	st := b.status

	badge := stateBadge(st)
	if st.State.Busy() || st.State == lifecycle.StateRetryWait {
		badge = b.spinnerC.View() + " " + badge
	}

	row := func(label, value string) string {
		return labelStyle.Render(label) + value
	}

	player := style.Faint("none")
	if st.HasPlayer {
		player = st.Player.String()
	}

	retries := fmt.Sprintf("%d", st.RetryCount)
	if st.Unavailable {
		retries += " " + style.Fg(style.ErrorColor)("unavailable")
	}

	triggers := style.Fg(style.SuccessColor)("eligible")
	if reason := b.snapshot.Reason(); reason != "" {
		triggers = style.Fg(style.WarningColor)(reason)
	}

	volume := percent(b.userVolume * b.masterVolume)
	if b.muted {
		volume = style.Faint(volume + " muted")
	}

	freeze := style.Faint("none")
	if st.HasSnapshot {
		freeze = icon.Get(icon.Freeze) + " held"
	}

	session := style.Faint("none")
	if st.Session != "" {
		session = style.Faint(st.Session)
	}

	lines := []string{
		style.Title(constant.Livewatch) + " " + style.Fg(color.Purple)(b.stream),
		"",
		badge,
		"",
		row("Player", player),
		row("Quality", st.Selection.String()+style.Faint(fmt.Sprintf(" of %d", b.sources.Len()))),
		row("Source", style.Truncate(lo.Max([]int{b.width - 10, 20}))(st.URL)),
		row("Retries", retries),
		row("Triggers", triggers),
		row("Volume", volume),
		row("Render", b.renderMode.String()),
		row("Freeze", freeze),
		row("Session", session),
	}

	if len(b.feed) > 0 {
		lines = append(lines, "")
		for _, ev := range b.feed {
			lines = append(lines, style.Faint(icon.Get(ev.Icon)+" "+ev.Text))
		}
	}

	lines = append(lines, "", b.helpC.View(b.keymap))
	return paddingStyle.Render(strings.Join(lines, "\n"))
}

func (b *statefulBubble) viewError() string {
	msg := "unknown error"
	if b.lastError != nil {
		msg = b.lastError.Error()
	}

	return paddingStyle.Render(strings.Join([]string{
		style.ErrorTitle("Error"),
		"",
		style.Fg(color.Red)(icon.Get(icon.Fail) + " " + wrap.String(msg, lo.Max([]int{b.width - 4, 20}))),
		"",
		b.helpC.View(b.keymap),
	}, "\n"))
}
