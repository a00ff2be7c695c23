// Package bandwidth measures network throughput and shares the estimate across players.
package bandwidth

import (
	"math"
	"sync"
	"time"

	"github.com/xmedia/xmedia/network"
)

// Meter observes transfers and estimates throughput in bits per second.
type Meter interface {
	network.TransferListener
	Estimate() int64
	// Reset discards every measurement and returns to the initial estimate.
	Reset()
}

const (
	slidingMaxWeight       = 2000
	elapsedMillisForEst    = 2000
	bytesTransferredForEst = 512 * 1024
)

// Clock is the time source meters use.
type Clock func() time.Time

// transferCounter tracks concurrent transfers as one sample window.
type transferCounter struct {
	streams     int
	sampleStart time.Time
	sampleBytes int64
}

func (c *transferCounter) start(now time.Time) {
	if c.streams == 0 {
		c.sampleStart = now
	}
	c.streams++
}

// end closes the window and returns the sample; ok is false when nothing was measured.
func (c *transferCounter) end(now time.Time) (bytes int64, elapsed time.Duration, ok bool) {
	if c.streams == 0 {
		return 0, 0, false
	}
	c.streams--

	bytes, elapsed = c.sampleBytes, now.Sub(c.sampleStart)
	c.sampleBytes = 0
	if c.streams > 0 {
		c.sampleStart = now
	}
	return bytes, elapsed, elapsed > 0 && bytes > 0
}

// SlidingMeter estimates with a weighted sliding median of per-window throughput,
// each window weighted by the square root of its byte count.
type SlidingMeter struct {
	mu         sync.Mutex
	now        Clock
	initial    int64
	counter    transferCounter
	percentile *slidingPercentile
	totalMs    int64
	totalBytes int64
	estimate   int64
}

// NewSlidingMeter returns a meter reporting initial until enough data is seen.
func NewSlidingMeter(initial int64, now Clock) *SlidingMeter {
	if now == nil {
		now = time.Now
	}
	return &SlidingMeter{
		now:        now,
		initial:    initial,
		percentile: newSlidingPercentile(slidingMaxWeight),
		estimate:   initial,
	}
}

func (m *SlidingMeter) OnTransferStart(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter.start(m.now())
}

func (m *SlidingMeter) OnBytesTransferred(_ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter.sampleBytes += int64(n)
}

func (m *SlidingMeter) OnTransferEnd(string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bytes, elapsed, ok := m.counter.end(m.now())
	if !ok {
		return
	}

	ms := elapsed.Milliseconds()
	m.totalMs += ms
	m.totalBytes += bytes

	if ms > 0 {
		bps := float64(bytes) * 8000 / float64(ms)
		m.percentile.add(math.Sqrt(float64(bytes)), bps)
		if m.totalMs >= elapsedMillisForEst || m.totalBytes >= bytesTransferredForEst {
			m.estimate = int64(m.percentile.percentile(0.5, float64(m.initial)))
		}
	}
}

func (m *SlidingMeter) Estimate() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimate
}

func (m *SlidingMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter = transferCounter{}
	m.percentile.reset()
	m.totalMs, m.totalBytes = 0, 0
	m.estimate = m.initial
}

const (
	fastHalfLife        = 2.0
	slowHalfLife        = 5.0
	minTotalBytesForEst = 128 * 1024
	minSampleBytes      = 16 * 1024
)

// ewma is an exponentially weighted moving average with a half-life in seconds.
type ewma struct {
	alpha       float64
	estimate    float64
	totalWeight float64
}

func newEWMA(halfLife float64) ewma {
	return ewma{alpha: math.Exp(math.Log(0.5) / halfLife)}
}

func (e *ewma) sample(weight, value float64) {
	adj := math.Pow(e.alpha, weight)
	e.estimate = value*(1-adj) + adj*e.estimate
	e.totalWeight += weight
}

// value corrects the zero-start bias.
func (e *ewma) value() float64 {
	zeroFactor := 1 - math.Pow(e.alpha, e.totalWeight)
	if zeroFactor <= 0 {
		return 0
	}
	return e.estimate / zeroFactor
}

// ExperimentalMeter keeps a fast and a slow EWMA and reports the lower of the two,
// reacting quickly to drops and slowly to recoveries.
type ExperimentalMeter struct {
	mu         sync.Mutex
	now        Clock
	initial    int64
	counter    transferCounter
	fast, slow ewma
	totalBytes int64
}

func NewExperimentalMeter(initial int64, now Clock) *ExperimentalMeter {
	if now == nil {
		now = time.Now
	}
	return &ExperimentalMeter{
		now:     now,
		initial: initial,
		fast:    newEWMA(fastHalfLife),
		slow:    newEWMA(slowHalfLife),
	}
}

func (m *ExperimentalMeter) OnTransferStart(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter.start(m.now())
}

func (m *ExperimentalMeter) OnBytesTransferred(_ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter.sampleBytes += int64(n)
}

func (m *ExperimentalMeter) OnTransferEnd(string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bytes, elapsed, ok := m.counter.end(m.now())
	if !ok || bytes < minSampleBytes {
		return
	}

	secs := elapsed.Seconds()
	bps := float64(bytes) * 8 / secs
	m.fast.sample(secs, bps)
	m.slow.sample(secs, bps)
	m.totalBytes += bytes
}

func (m *ExperimentalMeter) Estimate() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.totalBytes < minTotalBytesForEst {
		return m.initial
	}
	return int64(math.Min(m.fast.value(), m.slow.value()))
}

func (m *ExperimentalMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter = transferCounter{}
	m.fast = newEWMA(fastHalfLife)
	m.slow = newEWMA(slowHalfLife)
	m.totalBytes = 0
}
