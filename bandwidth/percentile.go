package bandwidth

import (
	"golang.org/x/exp/slices"
)

type sample struct {
	index  int
	weight float64
	value  float64
}

// slidingPercentile keeps recent weighted samples up to maxWeight, trimming the oldest first.
type slidingPercentile struct {
	maxWeight   float64
	samples     []sample
	totalWeight float64
	nextIndex   int
}

func newSlidingPercentile(maxWeight float64) *slidingPercentile {
	return &slidingPercentile{maxWeight: maxWeight}
}

func (p *slidingPercentile) add(weight, value float64) {
	p.samples = append(p.samples, sample{index: p.nextIndex, weight: weight, value: value})
	p.nextIndex++
	p.totalWeight += weight

	for p.totalWeight > p.maxWeight && len(p.samples) > 0 {
		excess := p.totalWeight - p.maxWeight
		oldest := &p.samples[0]
		if oldest.weight <= excess {
			p.totalWeight -= oldest.weight
			p.samples = p.samples[1:]
			continue
		}
		oldest.weight -= excess
		p.totalWeight -= excess
	}
}

// percentile returns the weighted percentile of the kept samples, or fallback when empty.
func (p *slidingPercentile) percentile(q float64, fallback float64) float64 {
	if len(p.samples) == 0 {
		return fallback
	}

	sorted := slices.Clone(p.samples)
	slices.SortStableFunc(sorted, func(a, b sample) int {
		switch {
		case a.value < b.value:
			return -1
		case a.value > b.value:
			return 1
		default:
			return 0
		}
	})

	desired := q * p.totalWeight
	var accumulated float64
	for _, s := range sorted {
		accumulated += s.weight
		if accumulated >= desired {
			return s.value
		}
	}
	return sorted[len(sorted)-1].value
}

func (p *slidingPercentile) reset() {
	p.samples = nil
	p.totalWeight = 0
	p.nextIndex = 0
}
