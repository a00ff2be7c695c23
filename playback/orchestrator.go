// Package playback reconciles an engine's asynchronous events and the caller's
// controls into one observable playback state.
package playback

import (
	"context"
	"math"
	"sync"

	"github.com/samber/mo"
	"github.com/xmedia/xmedia/bandwidth"
	"github.com/xmedia/xmedia/cache"
	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/constant"
	"github.com/xmedia/xmedia/log"
	"github.com/xmedia/xmedia/metrics"
	"github.com/xmedia/xmedia/player"
	"github.com/xmedia/xmedia/rendition"
	"github.com/xmedia/xmedia/source"
)

// Shared holds the process-wide collaborators every orchestrator uses.
type Shared struct {
	Cache     *cache.Manager
	Bandwidth *bandwidth.Shared
}

// NewShared returns fresh shared collaborators.
func NewShared(preCacheWorkers int, preCacheMaxBytesPerSecond int64) Shared {
	return Shared{
		Cache:     cache.NewManager(preCacheWorkers, preCacheMaxBytesPerSecond),
		Bandwidth: bandwidth.NewShared(nil),
	}
}

// Callbacks are invoked in order on a dedicated goroutine, so they may call back
// into the orchestrator.
type Callbacks struct {
	// OnEnded is not invoked while repeat is on.
	OnEnded func()
	OnError func(err *Error)
	// OnFirstFrame fires once per Prepare.
	OnFirstFrame func()
}

// Options configure an orchestrator.
type Options struct {
	Player    config.Player
	Shared    Shared
	Factory   player.Factory
	Binary    string
	Callbacks Callbacks
}

// Orchestrator drives one engine instance. All state lives on its loop goroutine;
// engine events and controls are reduced in arrival order.
type Orchestrator struct {
	cfg       config.Player
	bounds    rendition.Bounds
	shared    Shared
	factory   player.Factory
	binary    string
	callbacks Callbacks

	inbox     *mailbox
	outbox    *mailbox
	exited    chan struct{}
	releaseMu sync.Mutex

	// owned by the loop
	engine          player.Engine
	generation      int
	state           State
	ticker          *progressTicker
	repeat          bool
	preMuteVolume   float64
	autoPick        mo.Option[rendition.Selector]
	firstFrameFired bool
	released        bool

	snapMu     sync.RWMutex
	snapshot   State
	subs       map[int]chan State
	nextSub    int
	subsClosed bool
}

// New starts an orchestrator. Nil shared collaborators are created on the spot.
func New(opts Options) *Orchestrator {
	if opts.Shared.Cache == nil {
		opts.Shared.Cache = cache.NewManager(1, 0)
	}
	if opts.Shared.Bandwidth == nil {
		opts.Shared.Bandwidth = bandwidth.NewShared(nil)
	}
	if opts.Factory == nil {
		opts.Factory = player.NewMPVFactory()
	}

	o := &Orchestrator{
		cfg:           opts.Player,
		bounds:        rendition.NewBounds(opts.Player.Selection),
		shared:        opts.Shared,
		factory:       opts.Factory,
		binary:        opts.Binary,
		callbacks:     opts.Callbacks,
		inbox:         newMailbox(),
		outbox:        newMailbox(),
		exited:        make(chan struct{}),
		state:         defaultState(),
		ticker:        newProgressTicker(constant.ProgressInterval),
		preMuteVolume: 1,
		subs:          make(map[int]chan State),
	}
	o.snapshot = o.state.clone()

	go o.loop()
	go o.outbox.run()

	return o
}

func (o *Orchestrator) loop() {
	defer close(o.exited)

	for {
		select {
		case <-o.inbox.signal:
			for _, fn := range o.inbox.drain() {
				fn()
			}
			if o.released {
				return
			}
		case <-o.ticker.C():
			o.sampleProgress()
		}
	}
}

// do runs fn on the loop and waits for its result.
func (o *Orchestrator) do(fn func() error) error {
	result := make(chan error, 1)
	pushed := o.inbox.push(func() {
		if o.released {
			result <- ErrReleased
			return
		}
		result <- fn()
	})
	if !pushed {
		return ErrReleased
	}

	select {
	case err := <-result:
		return err
	case <-o.exited:
		select {
		case err := <-result:
			return err
		default:
			return ErrReleased
		}
	}
}

// Snapshot returns the latest published state.
func (o *Orchestrator) Snapshot() State {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.snapshot.clone()
}

// Subscribe delivers every published state, dropping stale ones a slow reader missed.
// The channel is closed by cancel or by Release; after Release it is returned closed.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	o.snapMu.Lock()
	defer o.snapMu.Unlock()

	if o.subsClosed {
		ch := make(chan State)
		close(ch)
		return ch, func() {}
	}

	id := o.nextSub
	o.nextSub++

	ch := make(chan State, 1)
	ch <- o.snapshot.clone()
	o.subs[id] = ch

	return ch, func() {
		o.snapMu.Lock()
		defer o.snapMu.Unlock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
	}
}

// Engine exposes the raw engine for features outside the orchestrator. Nil before Prepare.
func (o *Orchestrator) Engine() player.Engine {
	var engine player.Engine
	_ = o.do(func() error {
		engine = o.engine
		return nil
	})
	return engine
}

func (o *Orchestrator) publish() {
	o.snapMu.Lock()
	defer o.snapMu.Unlock()

	o.snapshot = o.state.clone()
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- o.snapshot.clone()
	}
}

func (o *Orchestrator) notify(fn func()) {
	if fn == nil {
		return
	}
	o.outbox.push(fn)
}

// Prepare loads url. A different url than the current one rebuilds the engine.
// Data path construction failures are returned, not stored as a playback error.
func (o *Orchestrator) Prepare(ctx context.Context, url string) error {
	return o.do(func() error {
		if o.engine != nil && o.state.CurrentURL != url {
			o.releaseEngine()
			o.state = defaultState()
			o.preMuteVolume = 1
		}

		meter := o.shared.Bandwidth.GetOrCreate(o.cfg.Bandwidth)

		dataPath, err := o.shared.Cache.CreateCachingDataPath(o.cfg.Cache, meter)
		if err != nil {
			o.publish()
			return err
		}

		if o.engine == nil {
			if err := o.createEngine(meter); err != nil {
				o.publish()
				return err
			}
		}

		o.state.Error = nil
		o.state.Qualities = nil
		o.state.CurrentQuality = mo.None[rendition.Rendition]()
		o.autoPick = mo.None[rendition.Selector]()
		o.state.CurrentURL = url
		o.state.Phase = PhasePreparing
		o.state.PositionMs = 0
		o.state.DurationMs = 0
		o.firstFrameFired = false

		descriptor := source.NewDescriptor(url, dataPath)
		log.With(log.Fields{"url": url, "kind": descriptor.Kind}).Infof("preparing media")

		if err := o.engine.SetSource(ctx, descriptor); err != nil {
			o.publish()
			return err
		}
		if err := o.engine.Prepare(); err != nil {
			o.publish()
			return err
		}

		o.publish()
		return nil
	})
}

func (o *Orchestrator) createEngine(meter bandwidth.Meter) error {
	engine, err := o.factory(player.Options{
		Binary:    o.binary,
		Buffering: o.cfg.Buffering,
		Selection: o.cfg.Selection,
		Audio:     o.cfg.Audio,
		Meter:     meter,
		Estimate:  o.shared.Bandwidth.LastEstimate,
	})
	if err != nil {
		return err
	}

	o.generation++
	generation := o.generation
	engine.SetListener(func(e player.Event) {
		o.inbox.push(func() {
			if o.released || generation != o.generation {
				return
			}
			o.reduce(e)
		})
	})

	if o.state.Volume != 1 {
		if err := engine.SetVolume(o.state.Volume); err != nil {
			log.Warnf("apply volume: %v", err)
		}
	}
	if o.repeat {
		if err := engine.SetRepeat(true); err != nil {
			log.Warnf("apply repeat: %v", err)
		}
	}

	o.engine = engine
	return nil
}

func (o *Orchestrator) releaseEngine() {
	o.ticker.stop()
	if o.engine == nil {
		return
	}

	engine := o.engine
	o.engine = nil
	o.generation++

	if err := engine.Stop(); err != nil {
		log.Debugf("stop engine: %v", err)
	}
	if err := engine.Release(); err != nil {
		log.Warnf("release engine: %v", err)
	}
}

// Play resumes playback. IsPlaying follows the engine's report, not this call.
func (o *Orchestrator) Play() error {
	return o.withEngine(func(e player.Engine) error { return e.Play() })
}

// Pause suspends playback.
func (o *Orchestrator) Pause() error {
	return o.withEngine(func(e player.Engine) error { return e.Pause() })
}

// TogglePlayPause pauses while playing and plays otherwise.
func (o *Orchestrator) TogglePlayPause() error {
	return o.withEngine(func(e player.Engine) error {
		if o.state.IsPlaying {
			return e.Pause()
		}
		return e.Play()
	})
}

// SeekTo moves to ms, clamped to 0.
func (o *Orchestrator) SeekTo(ms int64) error {
	return o.withEngine(func(e player.Engine) error {
		return o.seek(e, ms)
	})
}

// SeekToPercent moves to floor(p * duration), p clamped to [0, 1].
func (o *Orchestrator) SeekToPercent(p float64) error {
	return o.withEngine(func(e player.Engine) error {
		if math.IsNaN(p) {
			p = 0
		}
		p = math.Max(0, math.Min(1, p))

		duration := e.Duration()
		if duration <= 0 {
			duration = o.state.DurationMs
		}
		return o.seek(e, int64(math.Floor(p*float64(duration))))
	})
}

func (o *Orchestrator) seek(e player.Engine, ms int64) error {
	if ms < 0 {
		ms = 0
	}
	if err := e.SeekTo(ms); err != nil {
		return err
	}
	o.state.PositionMs = ms
	o.publish()
	return nil
}

// Stop halts playback and unloads the source; the engine is kept for the next Prepare.
func (o *Orchestrator) Stop() error {
	return o.withEngine(func(e player.Engine) error {
		if err := e.Stop(); err != nil {
			return err
		}
		if err := e.ClearSource(); err != nil {
			return err
		}

		o.ticker.stop()
		o.state.IsPlaying = false
		o.state.IsBuffering = false
		o.state.PositionMs = 0
		if o.state.Phase != PhaseError {
			o.state.Phase = PhaseIdle
		}
		o.publish()
		return nil
	})
}

// SetQuality pins r, or hands selection back to the engine for Auto. Auto under
// bounded selection pins the bounded pick instead. The position before a switch is
// restored. An unknown rendition is logged and ignored.
func (o *Orchestrator) SetQuality(r rendition.Rendition) error {
	return o.withEngine(func(e player.Engine) error {
		if r.IsAuto {
			o.state.CurrentQuality = mo.Some(rendition.Auto)

			if o.bounds.Active() {
				position := e.Position()
				switched, err := o.applyBounds(e)
				if err != nil {
					return err
				}
				if switched {
					if err := e.SeekTo(position); err != nil {
						return err
					}
					o.state.PositionMs = position
				}
			} else if err := e.ClearTrackOverride(); err != nil {
				return err
			}

			o.publish()
			return nil
		}

		position := e.Position()
		tracks := e.Tracks()

		if _, ok := tracks.Format(r.Selector.Group, r.Selector.Track); !ok {
			log.Warnf("quality %s is not available, ignoring", r.Label)
			return nil
		}
		if g := tracks.Groups[r.Selector.Group]; !g.Video || !g.Supported {
			log.Warnf("quality %s is not a playable video track, ignoring", r.Label)
			return nil
		}

		if err := e.SelectTrack(r.Selector.Group, r.Selector.Track); err != nil {
			return err
		}
		if err := e.SeekTo(position); err != nil {
			return err
		}

		o.state.CurrentQuality = mo.Some(r)
		o.autoPick = mo.None[rendition.Selector]()
		o.state.PositionMs = position
		o.publish()
		return nil
	})
}

// applyBounds pins the rendition bounded automatic selection settles on, unless it
// is already pinned. It reports whether the engine switched tracks.
func (o *Orchestrator) applyBounds(e player.Engine) (bool, error) {
	pick, ok := o.bounds.Pick(o.state.Qualities)
	if !ok {
		return false, nil
	}
	if current, pinned := o.autoPick.Get(); pinned && current == pick.Selector {
		return false, nil
	}

	if err := e.SelectTrack(pick.Selector.Group, pick.Selector.Track); err != nil {
		return false, err
	}
	o.autoPick = mo.Some(pick.Selector)
	log.With(log.Fields{"quality": pick.Label}).Debugf("bounded selection pinned a rendition")
	return true, nil
}

// SetAutoQuality lets the engine adapt on its own.
func (o *Orchestrator) SetAutoQuality() error {
	return o.SetQuality(rendition.Auto)
}

// Mute silences output and remembers the volume for Unmute.
func (o *Orchestrator) Mute() error {
	return o.do(func() error {
		if o.state.Muted {
			return nil
		}
		if err := o.applyVolume(0); err != nil {
			return err
		}
		o.preMuteVolume = o.state.Volume
		o.state.Muted = true
		o.state.Volume = 0
		o.publish()
		return nil
	})
}

// Unmute restores the volume in effect before Mute.
func (o *Orchestrator) Unmute() error {
	return o.do(func() error {
		if !o.state.Muted {
			return nil
		}
		if err := o.applyVolume(o.preMuteVolume); err != nil {
			return err
		}
		o.state.Muted = false
		o.state.Volume = o.preMuteVolume
		o.publish()
		return nil
	})
}

// SetVolume applies v clamped to [0, 1]. It also lifts a mute.
func (o *Orchestrator) SetVolume(v float64) error {
	return o.do(func() error {
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(0, math.Min(1, v))
		if err := o.applyVolume(v); err != nil {
			return err
		}
		o.state.Muted = false
		o.state.Volume = v
		o.publish()
		return nil
	})
}

func (o *Orchestrator) applyVolume(v float64) error {
	if o.engine == nil {
		return nil
	}
	return o.engine.SetVolume(v)
}

// SetRepeat loops the current item. While on, reaching the end does not call OnEnded.
func (o *Orchestrator) SetRepeat(repeat bool) error {
	return o.do(func() error {
		if o.engine != nil {
			if err := o.engine.SetRepeat(repeat); err != nil {
				return err
			}
		}
		o.repeat = repeat
		return nil
	})
}

// Release stops the ticker, releases the engine and resets the state. Idempotent.
func (o *Orchestrator) Release() error {
	o.releaseMu.Lock()
	defer o.releaseMu.Unlock()

	err := o.do(func() error {
		o.releaseEngine()
		o.state = defaultState()
		o.released = true
		o.inbox.close()
		o.publish()
		return nil
	})
	if err == ErrReleased {
		return nil
	}

	<-o.exited
	o.outbox.close()

	o.snapMu.Lock()
	o.subsClosed = true
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
	o.snapMu.Unlock()

	return err
}

func (o *Orchestrator) withEngine(fn func(e player.Engine) error) error {
	return o.do(func() error {
		if o.engine == nil {
			return ErrNotPrepared
		}
		return fn(o.engine)
	})
}

// CacheSize is the shared disk cache's occupancy in bytes.
func (o *Orchestrator) CacheSize() int64 {
	return o.shared.Cache.Size()
}

// ClearCache wipes the shared disk cache.
func (o *Orchestrator) ClearCache() error {
	return o.shared.Cache.Clear()
}

// PreCache downloads the start of url into the shared cache in the background.
func (o *Orchestrator) PreCache(url string, targetDurationMs int64, callbacks cache.PreCacheCallbacks) *cache.Task {
	return o.shared.Cache.PreCache(url, o.cfg.Cache, targetDurationMs, callbacks)
}

// LastBandwidthEstimate is the shared estimate in bits per second, 0 when unknown.
func (o *Orchestrator) LastBandwidthEstimate() int64 {
	return o.shared.Bandwidth.LastEstimate()
}

// ResetBandwidthEstimate forgets every measurement.
func (o *Orchestrator) ResetBandwidthEstimate() {
	o.shared.Bandwidth.Reset()
	_ = o.do(func() error {
		o.state.BandwidthBps = 0
		o.publish()
		return nil
	})
}

func (o *Orchestrator) sampleProgress() {
	if o.engine == nil {
		return
	}

	if pos := o.engine.Position(); pos >= 0 {
		o.state.PositionMs = pos
	}
	if d := o.engine.Duration(); d > 0 {
		o.state.DurationMs = d
	}
	o.publish()
}

// reduce folds one engine event into the state.
func (o *Orchestrator) reduce(e player.Event) {
	switch ev := e.(type) {
	case player.PlayingChanged:
		o.state.IsPlaying = ev.Playing
		if ev.Playing {
			o.ticker.start()
			o.state.Phase = PhasePlaying
		} else {
			o.ticker.stop()
			if o.state.Phase == PhasePlaying {
				o.state.Phase = PhasePaused
			}
		}

	case player.PhaseChanged:
		o.reducePhase(ev.Phase)

	case player.TracksChanged:
		o.state.Qualities = rendition.Extract(ev.Tracks)
		if o.state.CurrentQuality.IsAbsent() && len(o.state.Qualities) > 0 {
			o.state.CurrentQuality = mo.Some(rendition.Auto)
		}
		if q, ok := o.state.CurrentQuality.Get(); ok && q.IsAuto && o.bounds.Active() {
			if _, err := o.applyBounds(o.engine); err != nil {
				log.Warnf("apply selection bounds: %v", err)
			}
		}

	case player.ErrorEvent:
		err := newError(ev)
		o.ticker.stop()
		o.state.Error = err
		o.state.IsPlaying = false
		o.state.IsBuffering = false
		o.state.Phase = PhaseError

		// measurements from before a network failure describe another network
		if err.Kind == NetworkError {
			o.shared.Bandwidth.NetworkChanged()
			o.state.BandwidthBps = o.shared.Bandwidth.LastEstimate()
		}

		metrics.PlaybackErrorsTotal.WithLabelValues(err.Kind.String()).Inc()
		log.With(log.Fields{"kind": err.Kind, "code": err.Code, "recoverable": IsRecoverable(err.Kind)}).Errorf("playback failed: %s", err.Message)

		if cb := o.callbacks.OnError; cb != nil {
			o.notify(func() { cb(err) })
		}

	case player.FirstFrameRendered:
		if !o.firstFrameFired {
			o.firstFrameFired = true
			o.notify(o.callbacks.OnFirstFrame)
		}

	case player.TransferEnded:
		o.state.BandwidthBps = o.shared.Bandwidth.LastEstimate()
	}

	o.publish()
}

func (o *Orchestrator) reducePhase(phase player.Phase) {
	switch phase {
	case player.PhaseBuffering:
		o.state.IsBuffering = true

	case player.PhaseReady:
		o.state.IsBuffering = false
		if d := o.engine.Duration(); d > 0 {
			o.state.DurationMs = d
		}
		if o.state.Phase == PhasePreparing {
			o.state.Phase = PhaseReady
		}

	case player.PhaseEnded:
		o.ticker.stop()
		o.state.IsBuffering = false
		o.state.IsPlaying = false
		o.state.Phase = PhaseEnded
		if o.state.DurationMs > 0 {
			o.state.PositionMs = o.state.DurationMs
		}
		if !o.repeat {
			o.notify(o.callbacks.OnEnded)
		}

	case player.PhaseIdle:
		o.state.IsBuffering = false
		if o.state.Phase != PhaseError {
			o.state.Phase = PhaseIdle
		}
	}
}
