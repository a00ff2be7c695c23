package bandwidth

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xmedia/xmedia/config"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func transfer(m Meter, clock *fakeClock, bytes int, took time.Duration) {
	m.OnTransferStart("u")
	clock.advance(took)
	m.OnBytesTransferred("u", bytes)
	m.OnTransferEnd("u")
}

func TestSlidingMeter(t *testing.T) {
	Convey("Given a sliding meter", t, func() {
		clock := &fakeClock{t: time.Unix(0, 0)}
		m := NewSlidingMeter(1_000_000, clock.now)

		Convey("it reports the initial estimate before any transfer", func() {
			So(m.Estimate(), ShouldEqual, 1_000_000)
		})

		Convey("it keeps the initial estimate until enough data is seen", func() {
			transfer(m, clock, 100*1024, 500*time.Millisecond)
			So(m.Estimate(), ShouldEqual, 1_000_000)
		})

		Convey("it switches to the measured median after 512KB", func() {
			transfer(m, clock, 600*1024, time.Second)
			So(m.Estimate(), ShouldEqual, 600*1024*8)
		})

		Convey("it switches after two seconds of transfers", func() {
			transfer(m, clock, 50_000, time.Second)
			transfer(m, clock, 50_000, time.Second)
			So(m.Estimate(), ShouldEqual, 400_000)
		})

		Convey("Reset returns to the initial estimate", func() {
			transfer(m, clock, 600*1024, time.Second)
			m.Reset()
			So(m.Estimate(), ShouldEqual, 1_000_000)
		})

		Convey("a transfer end without a start is ignored", func() {
			m.OnTransferEnd("u")
			So(m.Estimate(), ShouldEqual, 1_000_000)
		})
	})
}

func TestSlidingPercentile(t *testing.T) {
	Convey("slidingPercentile", t, func() {
		p := newSlidingPercentile(10)

		So(p.percentile(0.5, 7), ShouldEqual, 7)

		p.add(5, 100)
		p.add(5, 300)
		So(p.percentile(0.5, 0), ShouldEqual, 100)

		Convey("old samples are trimmed past the max weight", func() {
			p.add(5, 200)
			So(p.totalWeight, ShouldEqual, 10)
			So(p.samples, ShouldHaveLength, 2)
			So(p.percentile(0.5, 0), ShouldEqual, 200)
		})
	})
}

func TestExperimentalMeter(t *testing.T) {
	Convey("Given an experimental meter", t, func() {
		clock := &fakeClock{t: time.Unix(0, 0)}
		m := NewExperimentalMeter(1_000_000, clock.now)

		Convey("it reports the initial estimate until the minimum byte count", func() {
			transfer(m, clock, 64*1024, time.Second)
			So(m.Estimate(), ShouldEqual, 1_000_000)
		})

		Convey("a single sample is reported as measured", func() {
			transfer(m, clock, 200*1024, time.Second)
			So(m.Estimate(), ShouldAlmostEqual, 200*1024*8, 1)
		})

		Convey("a throughput drop lowers the estimate quickly", func() {
			transfer(m, clock, 200*1024, time.Second)
			first := m.Estimate()

			transfer(m, clock, 20*1024, time.Second)
			dropped := m.Estimate()

			So(dropped, ShouldBeLessThan, first)
			So(dropped, ShouldBeGreaterThan, 20*1024*8)
		})

		Convey("Reset returns to the initial estimate", func() {
			transfer(m, clock, 200*1024, time.Second)
			m.Reset()
			So(m.Estimate(), ShouldEqual, 1_000_000)
		})
	})
}

func TestShared(t *testing.T) {
	Convey("Given a shared estimator", t, func() {
		clock := &fakeClock{t: time.Unix(0, 0)}
		s := NewShared(clock.now)
		cfg := config.Bandwidth{InitialBitrateEstimate: 2_000_000}

		Convey("LastEstimate is 0 without a meter", func() {
			So(s.LastEstimate(), ShouldEqual, 0)
		})

		Convey("the same config returns the same meter", func() {
			a := s.GetOrCreate(cfg)
			b := s.GetOrCreate(cfg)
			So(a, ShouldEqual, b)
			So(s.LastEstimate(), ShouldEqual, 2_000_000)
		})

		Convey("a different config replaces the meter", func() {
			a := s.GetOrCreate(cfg)
			b := s.GetOrCreate(config.Bandwidth{InitialBitrateEstimate: 3_000_000, UseExperimentalEstimator: true})
			So(a, ShouldNotEqual, b)
			So(s.LastEstimate(), ShouldEqual, 3_000_000)
		})

		Convey("Reset forgets measurements and starts the next meter from its initial estimate", func() {
			m := s.GetOrCreate(cfg)
			transfer(m, clock, 600*1024, time.Second)
			So(s.LastEstimate(), ShouldEqual, 600*1024*8)

			s.Reset()
			So(s.LastEstimate(), ShouldEqual, 0)

			s.GetOrCreate(cfg)
			So(s.LastEstimate(), ShouldEqual, 2_000_000)
		})

		Convey("NetworkChanged resets only when configured to", func() {
			m := s.GetOrCreate(cfg)
			transfer(m, clock, 600*1024, time.Second)
			s.NetworkChanged()
			So(s.LastEstimate(), ShouldEqual, 600*1024*8)

			cfg.ResetOnNetworkChange = true
			m = s.GetOrCreate(cfg)
			transfer(m, clock, 600*1024, time.Second)
			s.NetworkChanged()
			So(s.LastEstimate(), ShouldEqual, 2_000_000)
		})
	})
}
