package tui

import (
	"github.com/xmedia/xmedia/rendition"
	"github.com/xmedia/xmedia/style"
	"github.com/xmedia/xmedia/util"
)

// qualityItem implements list.Item for one rendition.
type qualityItem struct {
	rendition rendition.Rendition
	current   bool
}

func (q *qualityItem) Title() string {
	title := q.rendition.Label
	if q.current {
		title += " " + style.Fg(style.AccentColor)("●")
	}
	return title
}

func (q *qualityItem) Description() string {
	if q.rendition.IsAuto {
		return "Adapt to the measured bandwidth"
	}
	return style.Faint(util.FormatBitrate(q.rendition.Bitrate))
}

func (q *qualityItem) FilterValue() string {
	return q.rendition.Label
}
