package playback

import (
	"context"
	"sync"

	"github.com/xmedia/xmedia/player"
	"github.com/xmedia/xmedia/source"
)

type fakeEngine struct {
	mu sync.Mutex

	listener func(player.Event)
	source   source.Descriptor
	prepared int
	released bool

	position int64
	duration int64
	volume   float64
	repeat   bool
	tracks   player.Tracks

	seeks      []int64
	selected   []int
	selections int
	autoSet    int
	stops      int
}

func (f *fakeEngine) SetSource(_ context.Context, d source.Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = d
	return nil
}

func (f *fakeEngine) ClearSource() error { return nil }

func (f *fakeEngine) Prepare() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared++
	return nil
}

func (f *fakeEngine) Play() error  { return nil }
func (f *fakeEngine) Pause() error { return nil }

func (f *fakeEngine) SeekTo(ms int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, ms)
	f.position = ms
	return nil
}

func (f *fakeEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeEngine) IsPlaying() bool     { return false }
func (f *fakeEngine) Phase() player.Phase { return player.PhaseIdle }

func (f *fakeEngine) Duration() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

func (f *fakeEngine) Position() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeEngine) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeEngine) SetVolume(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
	return nil
}

func (f *fakeEngine) Tracks() player.Tracks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracks
}

func (f *fakeEngine) SelectTrack(group, track int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = []int{group, track}
	f.selections++
	return nil
}

func (f *fakeEngine) ClearTrackOverride() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoSet++
	return nil
}

func (f *fakeEngine) SetRepeat(repeat bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repeat = repeat
	return nil
}

func (f *fakeEngine) SetListener(listener func(player.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = listener
}

func (f *fakeEngine) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
	return nil
}

func (f *fakeEngine) emit(e player.Event) {
	f.mu.Lock()
	listener := f.listener
	f.mu.Unlock()
	listener(e)
}

func (f *fakeEngine) setPosition(ms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = ms
}

func (f *fakeEngine) setDuration(ms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duration = ms
}

func (f *fakeEngine) setTracks(t player.Tracks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = t
}

func (f *fakeEngine) isReleased() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// fakeFactory hands out fake engines and remembers them in creation order.
type fakeFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	options []player.Options
}

func (ff *fakeFactory) build(opts player.Options) (player.Engine, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	e := &fakeEngine{volume: 1}
	ff.engines = append(ff.engines, e)
	ff.options = append(ff.options, opts)
	return e, nil
}

func (ff *fakeFactory) last() *fakeEngine {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.engines) == 0 {
		return nil
	}
	return ff.engines[len(ff.engines)-1]
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.engines)
}

// settle waits until every event queued so far has been reduced.
func settle(o *Orchestrator) {
	_ = o.do(func() error { return nil })
}

func tickerActive(o *Orchestrator) bool {
	var active bool
	_ = o.do(func() error {
		active = o.ticker.active()
		return nil
	})
	return active
}
