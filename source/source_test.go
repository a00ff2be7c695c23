package source

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xmedia/xmedia/network"
)

func TestClassify(t *testing.T) {
	Convey("Classify", t, func() {
		cases := []struct {
			url  string
			kind Kind
		}{
			{"https://cdn.example.com/live/master.m3u8", AdaptiveHLS},
			{"https://cdn.example.com/live/master.m3u8?token=abc", AdaptiveHLS},
			{"HTTPS://CDN.EXAMPLE.COM/LIVE/MASTER.M3U8", AdaptiveHLS},
			{"https://cdn.example.com/vod/manifest.mpd", AdaptiveDASH},
			{"https://cdn.example.com/vod/manifest.mpd?sig=1", AdaptiveDASH},
			{"https://cdn.example.com/vod/stream.ism/Manifest", SmoothStreaming},
			{"https://cdn.example.com/vod/stream.isml", SmoothStreaming},
			{"https://cdn.example.com/vod/stream.ism/manifest(format=mpd-time-csf)", SmoothStreaming},
			{"https://cdn.example.com/clip.mp4", Progressive},
			{"file:///sdcard/movies/master.m3u8", Local},
			{"content://media/external/video/42.mpd", Local},
			{"", Progressive},
		}

		for _, c := range cases {
			So(Classify(c.url), ShouldEqual, c.kind)
		}
	})

	Convey("Explicit extensions win over path inference", t, func() {
		So(Classify("https://cdn.example.com/stream.ism/index.m3u8?x=1"), ShouldEqual, AdaptiveHLS)
	})
}

func TestSupportsQualitySelection(t *testing.T) {
	Convey("SupportsQualitySelection", t, func() {
		Convey("should be true for adaptive streams", func() {
			So(SupportsQualitySelection("https://a.example/x.m3u8"), ShouldBeTrue)
			So(SupportsQualitySelection("https://a.example/x.m3u8?q=1"), ShouldBeTrue)
			So(SupportsQualitySelection("https://a.example/x.mpd"), ShouldBeTrue)
			So(SupportsQualitySelection("https://a.example/x.ism/manifest"), ShouldBeTrue)
		})

		Convey("should be false for progressive and local media", func() {
			So(SupportsQualitySelection("https://a.example/x.mp4"), ShouldBeFalse)
			So(SupportsQualitySelection("file:///x.m3u8"), ShouldBeFalse)
			So(SupportsQualitySelection("content://x.mpd"), ShouldBeFalse)
		})
	})
}

func TestDescriptor(t *testing.T) {
	Convey("NewDescriptor should classify and keep the data path", t, func() {
		up := network.NewUpstream(nil)
		d := NewDescriptor("https://a.example/x.m3u8", up)

		So(d.Kind, ShouldEqual, AdaptiveHLS)
		So(d.URL, ShouldEqual, "https://a.example/x.m3u8")
		So(d.DataPath, ShouldEqual, up)
		So(d.Kind.String(), ShouldEqual, "hls")
	})
}
