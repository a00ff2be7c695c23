package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	bubblesKey "github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/xmedia/xmedia/cache"
	"github.com/xmedia/xmedia/playback"
	"github.com/xmedia/xmedia/style"
	"github.com/xmedia/xmedia/util"
)

// statefulBubble is the playback screen model.
type statefulBubble struct {
	state  state
	keymap *statefulKeymap

	// components
	spinnerC  spinner.Model
	progressC progress.Model
	qualityC  list.Model
	helpC     help.Model

	player    *playback.Orchestrator
	updates   <-chan playback.State
	snapshot  playback.State
	preCaches []*cache.Task
	ctx       context.Context

	qualityApplied bool
	repeat         bool
	ended          bool
	lastError      error

	width, height int
	notifier      *notifier

	options *Options
}

func (b *statefulBubble) setState(s state) {
	b.state = s
	b.keymap.setState(s)
}

func (b *statefulBubble) raiseError(err error) {
	b.lastError = err
	b.setState(errorState)
}

func (b *statefulBubble) resize(width, height int) {
	x, y := paddingStyle.GetFrameSize()
	xx, yy := listExtraPaddingStyle.GetFrameSize()

	b.width = width - x
	b.height = height - y

	listWidth := width - xx
	b.qualityC.SetSize(listWidth, height-yy)
	b.qualityC.Help.Width = listWidth

	b.progressC.Width = lo.Clamp(b.width, 10, 120)
	b.helpC.Width = listWidth
}

func (b *statefulBubble) cancelPreCaches() {
	for _, task := range b.preCaches {
		task.Cancel()
	}
}

func newBubble(options *Options) *statefulBubble {
	keymap := newStatefulKeymap()
	bubble := statefulBubble{
		keymap:   keymap,
		notifier: &notifier{},
		options:  options,
		repeat:   options.Repeat,
	}

	bubble.helpC = help.New()

	bubble.spinnerC = spinner.New()
	bubble.spinnerC.Spinner = spinner.Dot
	bubble.spinnerC.Style = lipgloss.NewStyle().Foreground(style.AccentColor)

	bubble.progressC = progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = lipgloss.NewStyle().
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(style.AccentColor).
		Foreground(style.AccentColor).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedTitle

	bubble.qualityC = list.New([]list.Item{}, delegate, 0, 0)
	bubble.qualityC.KeyMap = keymap.forList()
	bubble.qualityC.AdditionalShortHelpKeys = keymap.ShortHelp
	bubble.qualityC.AdditionalFullHelpKeys = func() []bubblesKey.Binding {
		return keymap.FullHelp()[0]
	}
	bubble.qualityC.Title = "Quality"
	bubble.qualityC.Styles.Title = lipgloss.NewStyle().Foreground(style.Surface).Background(style.AccentColor).Padding(0, 1)
	bubble.qualityC.SetShowStatusBar(false)
	bubble.qualityC.SetShowPagination(false)
	bubble.qualityC.SetFilteringEnabled(false)

	if w, h, err := util.TerminalSize(); err == nil {
		bubble.resize(w, h)
	}

	bubble.setState(loadingState)
	return &bubble
}
