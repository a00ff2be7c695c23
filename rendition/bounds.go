package rendition

import (
	"github.com/samber/lo"
	"github.com/xmedia/xmedia/config"
)

// Bounds limits what automatic selection may settle on. Zero limits are unbounded.
// Manual picks are never bounded.
type Bounds struct {
	MinWidth   int
	MinHeight  int
	MaxWidth   int
	MaxHeight  int
	MaxBitrate int64

	ForceLowest  bool
	ForceHighest bool
}

// NewBounds takes the size, bitrate and forcing limits of sel.
func NewBounds(sel config.Selection) Bounds {
	return Bounds{
		MinWidth:     sel.MinVideoWidth,
		MinHeight:    sel.MinVideoHeight,
		MaxWidth:     sel.MaxVideoWidth,
		MaxHeight:    sel.MaxVideoHeight,
		MaxBitrate:   sel.MaxVideoBitrate,
		ForceLowest:  sel.ForceLowestBitrate,
		ForceHighest: sel.ForceHighestSupportedBitrate,
	}
}

// Active reports whether b restricts anything.
func (b Bounds) Active() bool {
	return b != Bounds{}
}

// Contains reports whether r is a concrete rendition within every limit.
func (b Bounds) Contains(r Rendition) bool {
	if r.IsAuto {
		return false
	}
	return within(r.Width, b.MinWidth, b.MaxWidth) &&
		within(r.Height, b.MinHeight, b.MaxHeight) &&
		(b.MaxBitrate <= 0 || r.Bitrate <= b.MaxBitrate)
}

func within(v, lower, upper int) bool {
	return (lower <= 0 || v >= lower) && (upper <= 0 || v <= upper)
}

// Pick returns the rendition automatic selection settles on: the cheapest when forced
// low, the most expensive in-bounds one when forced high, otherwise the tallest
// in-bounds one. When nothing fits the cheapest rendition is used. ok is false for a
// list without concrete renditions.
func (b Bounds) Pick(list []Rendition) (Rendition, bool) {
	concrete := lo.Filter(list, func(r Rendition, _ int) bool { return !r.IsAuto })
	if len(concrete) == 0 {
		return Auto, false
	}

	cheapest := lo.MinBy(concrete, func(a, c Rendition) bool { return a.Bitrate < c.Bitrate })
	if b.ForceLowest {
		return cheapest, true
	}

	fits := lo.Filter(concrete, func(r Rendition, _ int) bool { return b.Contains(r) })
	switch {
	case len(fits) == 0:
		return cheapest, true
	case b.ForceHighest:
		return lo.MaxBy(fits, func(a, c Rendition) bool { return a.Bitrate > c.Bitrate }), true
	default:
		return lo.MaxBy(fits, func(a, c Rendition) bool { return a.Height > c.Height }), true
	}
}
