package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/livewatch-cli/livewatch/icon"
	"github.com/livewatch-cli/livewatch/style"
)

// CheckDependencies exits when the player executable cannot be found.
func CheckDependencies(binary string) {
	if _, err := exec.LookPath(binary); err != nil {
		fmt.Println(missingDependency(binary))
		os.Exit(1)
	}
}

// installHint returns how to install mpv on this platform, or an empty string for other players.
func installHint(binary string) string {
	name := strings.TrimSuffix(filepath.Base(binary), filepath.Ext(binary))
	if name != "mpv" {
		return ""
	}

	switch runtime.GOOS {
	case "darwin":
		return "brew install mpv"
	case "linux":
		return "sudo apt install mpv"
	case "windows":
		return "scoop install mpv"
	default:
		return ""
	}
}

func missingDependency(dep string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(style.HiRed).
		Padding(1, 2).
		Margin(1, 0)

	title := style.New().Bold(true).Foreground(style.HiRed).Render(fmt.Sprintf("%s Error: Missing Dependency", icon.Get(icon.Fail)))
	body := style.New().Foreground(style.Text).Render(fmt.Sprintf("The player '%s' was not found in your PATH.", dep))

	suggestion := ""
	if hint := installHint(dep); hint != "" {
		suggestion = fmt.Sprintf("\n\nTo install it, try running:\n  %s", style.New().Foreground(style.AccentColor).Bold(true).Render(hint))
	}

	return box.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			body,
			suggestion,
		),
	)
}
