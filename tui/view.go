package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wrap"
	"github.com/xmedia/xmedia/color"
	"github.com/xmedia/xmedia/playback"
	"github.com/xmedia/xmedia/style"
	"github.com/xmedia/xmedia/util"
)

var (
	listExtraPaddingStyle = lipgloss.NewStyle().Padding(1, 2, 1, 0)
	paddingStyle          = lipgloss.NewStyle().Padding(1, 2)
)

func (b *statefulBubble) View() string {
	var output string

	switch b.state {
	case loadingState:
		output = b.viewLoading()
	case playingState:
		output = b.viewPlaying()
	case qualityState:
		output = listExtraPaddingStyle.Render(b.qualityC.View())
	case errorState:
		output = b.viewError()
	default:
		output = "Unknown state"
	}

	return b.notifier.View(output)
}

func (b *statefulBubble) viewLoading() string {
	return b.renderLines(true, []string{
		style.Title("Loading"),
		"",
		style.Truncate(b.width)(b.spinnerC.View() + " " + b.options.URL),
	})
}

func (b *statefulBubble) viewPlaying() string {
	s := b.snapshot

	status := "Paused"
	switch {
	case b.ended || s.Phase == playback.PhaseEnded:
		status = "Ended"
	case s.IsBuffering:
		status = b.spinnerC.View() + "Buffering"
	case s.IsPlaying:
		status = "Playing"
	case s.Phase == playback.PhaseIdle:
		status = "Stopped"
	}

	quality := "-"
	if r, ok := s.CurrentQuality.Get(); ok {
		quality = r.Label
	}

	volume := fmt.Sprintf("%d%%", int(s.Volume*100+0.5))
	if s.Muted {
		volume = style.Fg(color.Red)("muted")
	}

	field := func(name, value string) string {
		return style.Faint(fmt.Sprintf("%-10s", name)) + value
	}

	lines := []string{
		style.Title("Now Playing"),
		"",
		style.Truncate(b.width)(style.Fg(color.Purple)(s.CurrentURL)),
		"",
		b.progressC.ViewAs(s.Progress()),
		fmt.Sprintf("%s / %s", util.FormatPosition(s.PositionMs), util.FormatPosition(s.DurationMs)),
		"",
		field("Status", style.Bold(status)),
		field("Quality", quality),
		field("Volume", volume),
		field("Repeat", fmt.Sprint(b.repeat)),
		field("Bandwidth", util.FormatBitrate(s.BandwidthBps)),
		field("Cache", util.FormatBytes(b.player.CacheSize())),
	}

	return b.renderLines(true, lines)
}

func (b *statefulBubble) viewError() string {
	message := "unknown failure"
	hint := ""
	if b.lastError != nil {
		message = b.lastError.Error()

		var perr *playback.Error
		if errors.As(b.lastError, &perr) && playback.IsRecoverable(perr.Kind) {
			hint = style.Faint("This looks transient; retrying may help.")
		}
	}

	body := lipgloss.NewStyle().Foreground(style.ErrorColor).Bold(true).Render(message)
	return b.renderLines(true, []string{
		style.ErrorTitle("Error"),
		"",
		style.Fail + " Playback failed:",
		"",
		wrap.String(body, b.width),
		"",
		hint,
	})
}

func (b *statefulBubble) renderLines(addHelp bool, lines []string) string {
	h := len(lines)
	l := strings.Join(lines, "\n")
	if addHelp {
		if b.height > h {
			l += strings.Repeat("\n", b.height-h)
		}
		l += b.helpC.View(b.keymap)
	}

	return paddingStyle.Render(l)
}
