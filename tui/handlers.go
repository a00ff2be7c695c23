package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/xmedia/xmedia/log"
	"github.com/xmedia/xmedia/playback"
	"github.com/xmedia/xmedia/rendition"
)

type (
	stateMsg         playback.State
	endedMsg         struct{}
	playbackErrorMsg struct{ err *playback.Error }
	preparedMsg      struct{}
)

// prepare loads the media and starts playing it with the requested volume and repeat mode.
func (b *statefulBubble) prepare() tea.Cmd {
	return func() tea.Msg {
		if err := b.player.Prepare(b.ctx, b.options.URL); err != nil {
			return err
		}
		if err := b.player.SetVolume(b.options.Volume); err != nil {
			return err
		}
		if err := b.player.SetRepeat(b.repeat); err != nil {
			return err
		}
		if err := b.player.Play(); err != nil {
			return err
		}
		return preparedMsg{}
	}
}

func (b *statefulBubble) waitForState() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-b.updates
		if !ok {
			return nil
		}
		return stateMsg(s)
	}
}

// control runs a player control off the UI goroutine; failures become notifications.
func (b *statefulBubble) control(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			log.Warnf("control failed: %v", err)
			return notification(err.Error())
		}
		return nil
	}
}

// applyInitialQuality honours --quality and --max-bitrate once renditions are known.
func (b *statefulBubble) applyInitialQuality(qualities []rendition.Rendition) tea.Cmd {
	b.qualityApplied = true

	var target rendition.Rendition
	switch {
	case b.options.Quality > 0:
		target = rendition.ByHeight(qualities, b.options.Quality)
	case b.options.MaxBitrate > 0:
		target = rendition.ByBitrateCap(qualities, b.options.MaxBitrate)
	default:
		return nil
	}

	if target.IsAuto {
		return nil
	}
	return b.control(func() error { return b.player.SetQuality(target) })
}

func (b *statefulBubble) seekBy(deltaMs int64) tea.Cmd {
	target := b.snapshot.PositionMs + deltaMs
	if b.snapshot.DurationMs > 0 && target > b.snapshot.DurationMs {
		target = b.snapshot.DurationMs
	}
	return b.control(func() error { return b.player.SeekTo(target) })
}

func (b *statefulBubble) changeVolume(delta float64) tea.Cmd {
	volume := b.snapshot.Volume
	if b.snapshot.Muted {
		volume = 0
	}
	return b.control(func() error { return b.player.SetVolume(volume + delta) })
}

func (b *statefulBubble) toggleMute() tea.Cmd {
	if b.snapshot.Muted {
		return b.control(b.player.Unmute)
	}
	return b.control(b.player.Mute)
}
