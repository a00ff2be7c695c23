package tui

import (
	bubblesKey "github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"
	"github.com/xmedia/xmedia/playback"
)

const seekStepMs = 5_000

func (b *statefulBubble) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if cmd := b.notifier.Update(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.resize(msg.Width, msg.Height)
	case spinner.TickMsg:
		var cmd tea.Cmd
		b.spinnerC, cmd = b.spinnerC.Update(msg)
		return b, tea.Batch(append(cmds, cmd)...)
	case stateMsg:
		cmds = append(cmds, b.onState(playback.State(msg)), b.waitForState())
		return b, tea.Batch(cmds...)
	case playbackErrorMsg:
		b.raiseError(msg.err)
		return b, tea.Batch(cmds...)
	case endedMsg:
		b.ended = true
		return b, tea.Batch(append(cmds, func() tea.Msg { return notification("Playback finished") })...)
	case error:
		b.raiseError(msg)
		return b, tea.Batch(cmds...)
	case tea.KeyMsg:
		if bubblesKey.Matches(msg, b.keymap.forceQuit) {
			return b, tea.Quit
		}
	}

	var (
		model tea.Model
		cmd   tea.Cmd
	)

	switch b.state {
	case loadingState:
		model, cmd = b.updateLoading(msg)
	case playingState:
		model, cmd = b.updatePlaying(msg)
	case qualityState:
		model, cmd = b.updateQuality(msg)
	case errorState:
		model, cmd = b.updateError(msg)
	default:
		model = b
	}

	return model, tea.Batch(append(cmds, cmd)...)
}

// onState mirrors the latest orchestrator snapshot and moves between screens.
func (b *statefulBubble) onState(s playback.State) tea.Cmd {
	b.snapshot = s

	if s.Phase == playback.PhaseError && s.Error != nil {
		b.raiseError(s.Error)
		return nil
	}

	if b.state == loadingState && lo.Contains([]playback.Phase{playback.PhaseReady, playback.PhasePlaying, playback.PhasePaused}, s.Phase) {
		b.setState(playingState)
	}

	if s.Phase == playback.PhasePlaying {
		b.ended = false
	}

	if !b.qualityApplied && len(s.Qualities) > 0 {
		return b.applyInitialQuality(s.Qualities)
	}
	return nil
}

func (b *statefulBubble) updateLoading(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && bubblesKey.Matches(msg, b.keymap.quit) {
		return b, tea.Quit
	}
	return b, nil
}

func (b *statefulBubble) updatePlaying(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return b, nil
	}

	switch {
	case bubblesKey.Matches(keyMsg, b.keymap.quit):
		return b, tea.Quit
	case bubblesKey.Matches(keyMsg, b.keymap.playPause):
		return b, b.control(b.player.TogglePlayPause)
	case bubblesKey.Matches(keyMsg, b.keymap.stop):
		return b, b.control(b.player.Stop)
	case bubblesKey.Matches(keyMsg, b.keymap.replay):
		if b.snapshot.Phase == playback.PhaseIdle {
			return b, b.prepare()
		}
		return b, b.control(func() error {
			if err := b.player.SeekTo(0); err != nil {
				return err
			}
			return b.player.Play()
		})
	case bubblesKey.Matches(keyMsg, b.keymap.seekBack):
		return b, b.seekBy(-seekStepMs)
	case bubblesKey.Matches(keyMsg, b.keymap.seekForward):
		return b, b.seekBy(seekStepMs)
	case bubblesKey.Matches(keyMsg, b.keymap.volumeUp):
		return b, b.changeVolume(0.1)
	case bubblesKey.Matches(keyMsg, b.keymap.volumeDown):
		return b, b.changeVolume(-0.1)
	case bubblesKey.Matches(keyMsg, b.keymap.mute):
		return b, b.toggleMute()
	case bubblesKey.Matches(keyMsg, b.keymap.autoQuality):
		return b, b.control(b.player.SetAutoQuality)
	case bubblesKey.Matches(keyMsg, b.keymap.repeat):
		b.repeat = !b.repeat
		repeat := b.repeat
		return b, b.control(func() error { return b.player.SetRepeat(repeat) })
	case bubblesKey.Matches(keyMsg, b.keymap.showHelp):
		b.helpC.ShowAll = !b.helpC.ShowAll
	case bubblesKey.Matches(keyMsg, b.keymap.quality):
		if len(b.snapshot.Qualities) == 0 {
			return b, func() tea.Msg { return notification("No selectable qualities") }
		}
		b.openQualityList()
	default:
		if p, ok := percentKey(keyMsg.String()); ok {
			return b, b.control(func() error { return b.player.SeekToPercent(p) })
		}
	}

	return b, nil
}

// percentKey maps digits 0-9 to 0%..90% of the duration.
func percentKey(k string) (float64, bool) {
	if len(k) != 1 || k[0] < '0' || k[0] > '9' {
		return 0, false
	}
	return float64(k[0]-'0') / 10, true
}

func (b *statefulBubble) openQualityList() {
	current, hasCurrent := b.snapshot.CurrentQuality.Get()

	items := make([]list.Item, 0, len(b.snapshot.Qualities))
	selected := 0
	for i, r := range b.snapshot.Qualities {
		isCurrent := hasCurrent && r.Same(current)
		if isCurrent {
			selected = i
		}
		items = append(items, &qualityItem{rendition: r, current: isCurrent})
	}

	_ = b.qualityC.SetItems(items)
	b.qualityC.Select(selected)
	b.setState(qualityState)
}

func (b *statefulBubble) updateQuality(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case bubblesKey.Matches(msg, b.keymap.back):
			b.setState(playingState)
			return b, nil
		case bubblesKey.Matches(msg, b.keymap.confirm):
			item, ok := b.qualityC.SelectedItem().(*qualityItem)
			b.setState(playingState)
			if !ok {
				return b, nil
			}
			r := item.rendition
			return b, b.control(func() error { return b.player.SetQuality(r) })
		}
	}

	b.qualityC, cmd = b.qualityC.Update(msg)
	return b, cmd
}

func (b *statefulBubble) updateError(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case bubblesKey.Matches(msg, b.keymap.quit):
			return b, tea.Quit
		case bubblesKey.Matches(msg, b.keymap.retry):
			b.lastError = nil
			b.qualityApplied = false
			b.setState(loadingState)
			return b, b.prepare()
		}
	}
	return b, nil
}
