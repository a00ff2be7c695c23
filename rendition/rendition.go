// Package rendition turns an engine track snapshot into the ordered quality list users pick from.
package rendition

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"github.com/xmedia/xmedia/player"
	"golang.org/x/exp/slices"
)

// Selector addresses a track inside the engine's snapshot.
type Selector struct {
	Group int
	Track int
}

// Rendition is one selectable quality. Two renditions are the same iff their IDs match.
type Rendition struct {
	ID       string
	Label    string
	Height   int
	Width    int
	Bitrate  int64
	IsAuto   bool
	Selector Selector
}

// Auto lets the engine adapt on its own.
var Auto = Rendition{
	ID:     "auto",
	Label:  "Auto",
	IsAuto: true,
}

func (r Rendition) String() string {
	return r.Label
}

// Same reports whether r and other denote the same rendition.
func (r Rendition) Same(other Rendition) bool {
	return r.ID == other.ID
}

// Extract lists the valid video renditions of tracks, one per height, tallest first,
// with Auto prepended. An empty snapshot yields an empty list.
func Extract(tracks player.Tracks) []Rendition {
	var found []Rendition

	for g, group := range tracks.Groups {
		if !group.Video || !group.Supported {
			continue
		}

		for t, f := range group.Formats {
			if f.Height <= 0 || f.Width <= 0 || f.Bitrate <= 0 {
				continue
			}

			found = append(found, Rendition{
				ID:       fmt.Sprintf("%d:%d", g, t),
				Label:    strconv.Itoa(f.Height) + "p",
				Height:   f.Height,
				Width:    f.Width,
				Bitrate:  f.Bitrate,
				Selector: Selector{Group: g, Track: t},
			})
		}
	}

	found = lo.UniqBy(found, func(r Rendition) int { return r.Height })
	if len(found) == 0 {
		return nil
	}

	slices.SortStableFunc(found, func(a, b Rendition) int {
		return b.Height - a.Height
	})

	return append([]Rendition{Auto}, found...)
}

// ByHeight returns the rendition with exactly the given height, else Auto.
func ByHeight(list []Rendition, height int) Rendition {
	r, ok := lo.Find(list, func(r Rendition) bool {
		return !r.IsAuto && r.Height == height
	})
	if !ok {
		return Auto
	}
	return r
}

// ByBitrateCap returns the tallest rendition within max bits per second. When every
// rendition exceeds the cap the cheapest one is returned; an empty list yields Auto.
func ByBitrateCap(list []Rendition, max int64) Rendition {
	concrete := lo.Filter(list, func(r Rendition, _ int) bool { return !r.IsAuto })
	if len(concrete) == 0 {
		return Auto
	}

	within := lo.Filter(concrete, func(r Rendition, _ int) bool { return r.Bitrate <= max })
	if len(within) > 0 {
		return lo.MaxBy(within, func(a, b Rendition) bool { return a.Height > b.Height })
	}

	return lo.MinBy(concrete, func(a, b Rendition) bool { return a.Bitrate < b.Bitrate })
}
