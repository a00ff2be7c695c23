// Package player defines the engine collaborator the playback orchestrator drives.
// The primary implementation targets mpv via its JSON-IPC interface.
package player

import (
	"context"

	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/network"
	"github.com/xmedia/xmedia/source"
)

// Phase is the engine's coarse loading state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBuffering
	PhaseReady
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseBuffering:
		return "buffering"
	case PhaseReady:
		return "ready"
	case PhaseEnded:
		return "ended"
	default:
		return "idle"
	}
}

// Format is one track inside a group.
type Format struct {
	ID      string
	Codec   string
	Width   int
	Height  int
	Bitrate int64
}

// Group is a set of alternative tracks of one type.
type Group struct {
	Video     bool
	Supported bool
	Formats   []Format
}

// Tracks is a snapshot of every group the loaded source exposes.
type Tracks struct {
	Groups []Group
}

// Format returns the format at (group, track), if any.
func (t Tracks) Format(group, track int) (Format, bool) {
	if group < 0 || group >= len(t.Groups) {
		return Format{}, false
	}
	formats := t.Groups[group].Formats
	if track < 0 || track >= len(formats) {
		return Format{}, false
	}
	return formats[track], true
}

// Engine is a single playback engine instance. Implementations deliver events
// to the listener from their own goroutines.
type Engine interface {
	SetSource(ctx context.Context, d source.Descriptor) error
	ClearSource() error
	Prepare() error
	Play() error
	Pause() error
	SeekTo(ms int64) error
	Stop() error

	IsPlaying() bool
	Phase() Phase
	// Duration is in milliseconds, 0 when unknown.
	Duration() int64
	Position() int64

	// Volume is in [0, 1].
	Volume() float64
	SetVolume(v float64) error

	Tracks() Tracks
	SelectTrack(group, track int) error
	ClearTrackOverride() error

	SetRepeat(repeat bool) error
	SetListener(listener func(Event))
	Release() error
}

// Options configure a new engine.
type Options struct {
	Binary    string
	Buffering config.Buffering
	Selection config.Selection
	Audio     config.Audio
	// Meter observes transfers the engine performs outside its data path.
	Meter network.TransferListener
	// Estimate returns the current bandwidth estimate in bits per second, 0 when unknown.
	Estimate func() int64
}

// Factory builds engines.
type Factory func(opts Options) (Engine, error)
