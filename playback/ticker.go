package playback

import "time"

// progressTicker is the periodic position sampler. It has no goroutine of its
// own: the loop selects on C, which is nil while stopped.
type progressTicker struct {
	interval time.Duration
	ticker   *time.Ticker
}

func newProgressTicker(interval time.Duration) *progressTicker {
	return &progressTicker{interval: interval}
}

func (t *progressTicker) start() {
	if t.ticker != nil {
		return
	}
	t.ticker = time.NewTicker(t.interval)
}

func (t *progressTicker) stop() {
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	t.ticker = nil
}

func (t *progressTicker) active() bool {
	return t.ticker != nil
}

func (t *progressTicker) C() <-chan time.Time {
	if t.ticker == nil {
		return nil
	}
	return t.ticker.C
}
