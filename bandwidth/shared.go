package bandwidth

import (
	"sync"

	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/log"
	"github.com/xmedia/xmedia/metrics"
)

// Shared owns the one meter every player of the process reports to.
// The meter survives individual players until Reset or a config change.
type Shared struct {
	mu    sync.Mutex
	meter *observedMeter
	cfg   config.Bandwidth
	now   Clock
}

// NewShared returns an empty handle. now may be nil.
func NewShared(now Clock) *Shared {
	return &Shared{now: now}
}

// GetOrCreate returns the live meter when it was built from cfg, otherwise replaces it.
func (s *Shared) GetOrCreate(cfg config.Bandwidth) Meter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meter != nil && s.cfg == cfg {
		return s.meter
	}

	var m Meter
	if cfg.UseExperimentalEstimator {
		m = NewExperimentalMeter(cfg.InitialBitrateEstimate, s.now)
	} else {
		m = NewSlidingMeter(cfg.InitialBitrateEstimate, s.now)
	}

	log.With(log.Fields{
		"initial":      cfg.InitialBitrateEstimate,
		"experimental": cfg.UseExperimentalEstimator,
	}).Debugf("bandwidth meter created")

	s.meter = &observedMeter{Meter: m}
	s.cfg = cfg
	return s.meter
}

// LastEstimate is the live meter's estimate in bits per second, 0 without a meter.
func (s *Shared) LastEstimate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meter == nil {
		return 0
	}
	return s.meter.Estimate()
}

// Reset drops the meter and its config; the next GetOrCreate starts from the initial estimate.
func (s *Shared) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.meter = nil
	s.cfg = config.Bandwidth{}
	metrics.BandwidthEstimateBps.Set(0)
}

// NetworkChanged discards measurements taken on the previous network when configured to.
func (s *Shared) NetworkChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meter == nil || !s.cfg.ResetOnNetworkChange {
		return
	}
	s.meter.Reset()
	log.Info("network changed, bandwidth estimate reset")
}

// observedMeter mirrors meter activity into metrics.
type observedMeter struct {
	Meter
}

func (o *observedMeter) OnBytesTransferred(url string, n int) {
	o.Meter.OnBytesTransferred(url, n)
	metrics.TransferredBytesTotal.Add(float64(n))
}

func (o *observedMeter) OnTransferEnd(url string) {
	o.Meter.OnTransferEnd(url)
	metrics.BandwidthEstimateBps.Set(float64(o.Meter.Estimate()))
}
