package playback

import (
	"github.com/samber/mo"
	"github.com/xmedia/xmedia/rendition"
	"golang.org/x/exp/slices"
)

// Phase is the orchestrator's view of the playback lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseReady
	PhasePlaying
	PhasePaused
	PhaseEnded
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhasePreparing:
		return "preparing"
	case PhaseReady:
		return "ready"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseEnded:
		return "ended"
	case PhaseError:
		return "error"
	default:
		return "idle"
	}
}

// State is one consistent snapshot of an orchestrator.
type State struct {
	IsPlaying      bool
	IsBuffering    bool
	PositionMs     int64
	DurationMs     int64
	CurrentURL     string
	Muted          bool
	Volume         float64
	Qualities      []rendition.Rendition
	CurrentQuality mo.Option[rendition.Rendition]
	Error          *Error
	Phase          Phase
	BandwidthBps   int64
}

func defaultState() State {
	return State{
		Volume:         1,
		CurrentQuality: mo.None[rendition.Rendition](),
	}
}

// clone copies s so the snapshot does not share the quality list with the loop.
func (s State) clone() State {
	s.Qualities = slices.Clone(s.Qualities)
	return s
}

// Progress is the position as a fraction of the duration, 0 when unknown.
func (s State) Progress() float64 {
	if s.DurationMs <= 0 {
		return 0
	}
	return float64(s.PositionMs) / float64(s.DurationMs)
}
