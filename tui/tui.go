// Package tui provides the interactive playback screen.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/xmedia/xmedia/cache"
	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/playback"
)

// Options encapsulates the runtime configuration for the terminal user interface.
type Options struct {
	URL    string
	Player config.Player
	Shared playback.Shared
	Binary string

	// Quality pins the rendition of this height once tracks are known; 0 keeps Auto.
	Quality int
	// MaxBitrate picks the tallest rendition within the cap once tracks are known; 0 disables it.
	MaxBitrate int64
	Repeat     bool
	Volume     float64

	// Next is pre-cached in the background while URL plays.
	Next []string
	// PreCacheMs is how much of each Next entry to pre-cache.
	PreCacheMs int64
}

// Run plays options.URL until the user quits.
func Run(options *Options) error {
	bubble := newBubble(options)
	program := tea.NewProgram(bubble, tea.WithAltScreen())

	bubble.player = playback.New(playback.Options{
		Player: options.Player,
		Shared: options.Shared,
		Binary: options.Binary,
		Callbacks: playback.Callbacks{
			OnEnded:      func() { program.Send(endedMsg{}) },
			OnError:      func(err *playback.Error) { program.Send(playbackErrorMsg{err: err}) },
			OnFirstFrame: func() { program.Send(notification("First frame rendered")) },
		},
	})
	defer func() { _ = bubble.player.Release() }()

	for _, next := range options.Next {
		next := next
		bubble.preCaches = append(bubble.preCaches, bubble.player.PreCache(next, options.PreCacheMs, cache.PreCacheCallbacks{
			OnComplete: func() { program.Send(notification("Pre-cached " + next)) },
			OnError:    func(err error) { program.Send(notification("Pre-cache failed: " + err.Error())) },
		}))
	}
	defer bubble.cancelPreCaches()

	updates, cancel := bubble.player.Subscribe()
	defer cancel()
	bubble.updates = updates
	bubble.ctx = context.Background()

	_, err := program.Run()
	return err
}
