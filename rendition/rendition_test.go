package rendition

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xmedia/xmedia/player"
)

func videoGroup(formats ...player.Format) player.Group {
	return player.Group{Video: true, Supported: true, Formats: formats}
}

func format(w, h int, bitrate int64) player.Format {
	return player.Format{Width: w, Height: h, Bitrate: bitrate}
}

func labels(list []Rendition) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.Label
	}
	return out
}

func TestExtract(t *testing.T) {
	Convey("Extract", t, func() {
		Convey("drops invalid formats, dedupes by height keeping the first and sorts tallest first", func() {
			tracks := player.Tracks{Groups: []player.Group{
				videoGroup(
					format(1920, 1080, 5_000_000),
					format(1280, 720, 2_500_000),
					format(1280, 720, 2_600_000),
					format(0, 0, 0),
				),
			}}

			list := Extract(tracks)

			So(labels(list), ShouldResemble, []string{"Auto", "1080p", "720p"})
			So(list[0].IsAuto, ShouldBeTrue)
			So(list[2].Bitrate, ShouldEqual, 2_500_000)
			So(list[2].Selector, ShouldResemble, Selector{Group: 0, Track: 1})
		})

		Convey("skips non-video and unsupported groups but keeps their indices", func() {
			tracks := player.Tracks{Groups: []player.Group{
				{Video: false, Supported: true, Formats: []player.Format{format(1, 1, 1)}},
				{Video: true, Supported: false, Formats: []player.Format{format(3840, 2160, 20_000_000)}},
				videoGroup(format(640, 360, 800_000), format(854, 480, 1_200_000)),
			}}

			list := Extract(tracks)

			So(labels(list), ShouldResemble, []string{"Auto", "480p", "360p"})
			So(list[1].Selector, ShouldResemble, Selector{Group: 2, Track: 1})
		})

		Convey("any non-positive dimension or bitrate is invalid", func() {
			tracks := player.Tracks{Groups: []player.Group{
				videoGroup(format(0, 720, 1), format(1280, 0, 1), format(1280, 720, 0), format(-1, 720, 1)),
			}}
			So(Extract(tracks), ShouldBeEmpty)
		})

		Convey("an empty snapshot yields no Auto entry", func() {
			So(Extract(player.Tracks{}), ShouldBeEmpty)
		})
	})
}

func TestLookups(t *testing.T) {
	Convey("Given a quality list", t, func() {
		list := Extract(player.Tracks{Groups: []player.Group{
			videoGroup(
				format(1920, 1080, 5_000_000),
				format(1280, 720, 2_500_000),
				format(854, 480, 1_200_000),
			),
		}})

		Convey("ByHeight finds exact matches only", func() {
			So(ByHeight(list, 720).Label, ShouldEqual, "720p")
			So(ByHeight(list, 700).Same(Auto), ShouldBeTrue)
			So(ByHeight(nil, 720).Same(Auto), ShouldBeTrue)
		})

		Convey("ByBitrateCap picks the tallest rendition under the cap", func() {
			So(ByBitrateCap(list, 3_000_000).Label, ShouldEqual, "720p")
			So(ByBitrateCap(list, 5_000_000).Label, ShouldEqual, "1080p")
		})

		Convey("ByBitrateCap falls back to the cheapest rendition", func() {
			So(ByBitrateCap(list, 1).Label, ShouldEqual, "480p")
		})

		Convey("ByBitrateCap on an empty list is Auto", func() {
			So(ByBitrateCap(nil, 1).Same(Auto), ShouldBeTrue)
			So(ByBitrateCap([]Rendition{Auto}, 1).Same(Auto), ShouldBeTrue)
		})
	})
}
