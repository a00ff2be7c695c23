package player

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/network"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func property(name string, data string) mpvMessage {
	return mpvMessage{Event: "property-change", Name: name, Data: json.RawMessage(data)}
}

func TestBuildArgs(t *testing.T) {
	Convey("buildArgs", t, func() {
		opts := Options{
			Buffering: config.DefaultPlayer().Buffering,
			Selection: config.Selection{BandwidthFraction: 0.5},
			Audio:     config.Audio{PreferredLanguage: "ja"},
			Estimate:  func() int64 { return 4_000_000 },
		}

		args := buildArgs("/tmp/x.sock", opts)

		So(args, ShouldContain, "--input-ipc-server=/tmp/x.sock")
		So(args, ShouldContain, "--idle=yes")
		So(args, ShouldContain, "--keep-open=yes")
		So(args, ShouldContain, "--demuxer-readahead-secs=50")
		So(args, ShouldContain, "--cache-pause-wait=5")
		So(args, ShouldContain, "--alang=ja")
		So(args, ShouldContain, "--hls-bitrate=2000000")

		Convey("equal min and max buffers disable hysteresis", func() {
			for _, arg := range args {
				So(arg, ShouldNotStartWith, "--demuxer-hysteresis-secs")
			}
		})

		Convey("a min buffer below the max becomes the resume threshold", func() {
			opts.Buffering = config.LowLatencyPlayer().Buffering
			args := buildArgs("/tmp/x.sock", opts)

			So(args, ShouldContain, "--demuxer-readahead-secs=10")
			So(args, ShouldContain, "--demuxer-hysteresis-secs=5")
		})
	})
}

func TestHLSBitrate(t *testing.T) {
	Convey("hlsBitrate", t, func() {
		sel := config.Selection{BandwidthFraction: 0.5}

		Convey("forced extremes win", func() {
			So(hlsBitrate(config.Selection{ForceLowestBitrate: true}, 1), ShouldEqual, "min")
			So(hlsBitrate(config.Selection{ForceHighestSupportedBitrate: true}, 1), ShouldEqual, "max")
		})

		Convey("no estimate and no cap means highest", func() {
			So(hlsBitrate(sel, 0), ShouldEqual, "max")
		})

		Convey("the tighter of cap and usable estimate is used", func() {
			sel.MaxVideoBitrate = 1_000_000
			So(hlsBitrate(sel, 10_000_000), ShouldEqual, "1000000")
			So(hlsBitrate(sel, 1_000_000), ShouldEqual, "500000")
		})
	})
}

func TestParseTrackList(t *testing.T) {
	Convey("parseTrackList", t, func() {
		data := json.RawMessage(`[
			{"id":1,"type":"video","codec":"h264","demux-w":1920,"demux-h":1080,"hls-bitrate":5000000},
			{"id":2,"type":"video","codec":"h264","demux-w":1280,"demux-h":720,"demux-bitrate":2500000},
			{"id":1,"type":"audio","codec":"aac","lang":"en"},
			{"id":3,"type":"video","albumart":true,"demux-w":500,"demux-h":500}
		]`)

		tracks := parseTrackList(data)

		So(tracks.Groups, ShouldHaveLength, 3)
		So(tracks.Groups[0].Video, ShouldBeTrue)
		So(tracks.Groups[0].Supported, ShouldBeTrue)
		So(tracks.Groups[0].Formats, ShouldHaveLength, 2)
		So(tracks.Groups[0].Formats[1].Bitrate, ShouldEqual, 2_500_000)
		So(tracks.Groups[1].Video, ShouldBeFalse)
		So(tracks.Groups[2].Supported, ShouldBeFalse)

		f, ok := tracks.Format(0, 0)
		So(ok, ShouldBeTrue)
		So(f.ID, ShouldEqual, "1")
		So(f.Height, ShouldEqual, 1080)

		_, ok = tracks.Format(0, 5)
		So(ok, ShouldBeFalse)
		_, ok = tracks.Format(-1, 0)
		So(ok, ShouldBeFalse)
	})

	Convey("malformed data yields no tracks", t, func() {
		So(parseTrackList(json.RawMessage(`{`)).Groups, ShouldBeEmpty)
	})
}

func TestHandleMessage(t *testing.T) {
	Convey("Given an mpv engine without a process", t, func() {
		rec := &recorder{}
		m := &MPV{paused: true, volume: 1}
		m.SetListener(rec.listen)

		Convey("file-loaded then unpause should report ready and playing", func() {
			m.handleMessage(mpvMessage{Event: "file-loaded"})
			m.handleMessage(property("pause", "false"))

			So(rec.all(), ShouldResemble, []Event{
				PhaseChanged{Phase: PhaseReady},
				PlayingChanged{Playing: true},
			})
			So(m.IsPlaying(), ShouldBeTrue)
		})

		Convey("a cache stall should pause playback and resume afterwards", func() {
			m.handleMessage(mpvMessage{Event: "file-loaded"})
			m.handleMessage(property("pause", "false"))
			m.handleMessage(property("paused-for-cache", "true"))

			So(m.Phase(), ShouldEqual, PhaseBuffering)
			So(m.IsPlaying(), ShouldBeFalse)

			m.handleMessage(property("paused-for-cache", "false"))
			So(m.Phase(), ShouldEqual, PhaseReady)
			So(m.IsPlaying(), ShouldBeTrue)
		})

		Convey("eof should end playback", func() {
			m.handleMessage(mpvMessage{Event: "file-loaded"})
			m.handleMessage(property("pause", "false"))
			m.handleMessage(property("eof-reached", "true"))

			So(m.Phase(), ShouldEqual, PhaseEnded)
			So(m.IsPlaying(), ShouldBeFalse)
		})

		Convey("duration is kept in milliseconds", func() {
			m.handleMessage(property("duration", "12.3456"))
			So(m.Duration(), ShouldEqual, 12345)
		})

		Convey("playback-restart is a first frame", func() {
			m.handleMessage(mpvMessage{Event: "playback-restart"})
			So(rec.all(), ShouldResemble, []Event{FirstFrameRendered{}})
		})

		Convey("end-file errors are mapped to codes", func() {
			m.handleMessage(mpvMessage{Event: "end-file", Reason: "eof"})
			So(rec.all(), ShouldBeEmpty)

			m.handleMessage(mpvMessage{Event: "end-file", Reason: "error", FileError: "unrecognized file format"})
			events := rec.all()
			So(events, ShouldHaveLength, 1)
			So(events[0].(ErrorEvent).Code, ShouldEqual, ErrorParsingContainerUnsupported)
		})

		Convey("a failed transfer takes precedence over mpv's generic reason", func() {
			m.onTransferDone("https://a.example/seg.ts", &network.StatusError{URL: "https://a.example/seg.ts", Code: 503})
			m.handleMessage(mpvMessage{Event: "end-file", Reason: "error", FileError: "loading failed"})

			events := rec.all()
			So(events[0], ShouldResemble, TransferEnded{URL: "https://a.example/seg.ts"})
			So(events[1].(ErrorEvent).Code, ShouldEqual, ErrorIOBadHTTPStatus)
		})

		Convey("track-list changes are forwarded", func() {
			m.handleMessage(property("track-list", `[{"id":1,"type":"video","demux-w":640,"demux-h":360,"demux-bitrate":800000}]`))
			So(m.Tracks().Groups, ShouldHaveLength, 1)

			_, ok := rec.all()[0].(TracksChanged)
			So(ok, ShouldBeTrue)
		})
	})
}

func TestErrorCodes(t *testing.T) {
	Convey("endFileErrorCode", t, func() {
		So(endFileErrorCode("no audio or video data played"), ShouldEqual, ErrorDecodingFailed)
		So(endFileErrorCode("video output initialization failed"), ShouldEqual, ErrorDecoderInitFailed)
		So(endFileErrorCode("loading failed"), ShouldEqual, ErrorIOUnspecified)
		So(endFileErrorCode("something else"), ShouldEqual, ErrorUnspecified)
	})

	Convey("every code has a name", t, func() {
		for code := ErrorUnspecified; code <= ErrorAudioTrackWriteFailed; code++ {
			So(code.String(), ShouldNotEqual, "unknown")
		}
	})
}

func TestSanitizeMediaTarget(t *testing.T) {
	Convey("sanitizeMediaTarget", t, func() {
		_, err := sanitizeMediaTarget("--script=evil.lua")
		So(err, ShouldNotBeNil)

		_, err = sanitizeMediaTarget("ftp://a.example/x")
		So(err, ShouldNotBeNil)

		_, err = sanitizeMediaTarget("https://a.example/x\n")
		So(err, ShouldBeNil)

		_, err = sanitizeMediaTarget("https://a.example/\nx")
		So(err, ShouldNotBeNil)

		target, err := sanitizeMediaTarget("/media/../media/clip.mp4")
		So(err, ShouldBeNil)
		So(strings.HasSuffix(target, "clip.mp4"), ShouldBeTrue)
	})
}
