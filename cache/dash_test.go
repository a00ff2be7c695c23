package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xmedia/xmedia/filesystem"
)

const manifest = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT12S">
  <Period>
    <AdaptationSet contentType="video" mimeType="video/mp4">
      <SegmentTemplate initialization="$RepresentationID$/init.mp4" media="$RepresentationID$/$Number%03d$.m4s" duration="4000" timescale="1000"/>
      <Representation id="v1080" bandwidth="6000000" width="1920" height="1080"/>
      <Representation id="v720" bandwidth="2000000" width="1280" height="720"/>
      <Representation id="v360" bandwidth="800000" width="640" height="360"/>
    </AdaptationSet>
    <AdaptationSet contentType="audio" mimeType="audio/mp4">
      <Representation id="a128" bandwidth="128000">
        <SegmentList>
          <Initialization sourceURL="audio/init.mp4"/>
          <SegmentURL media="audio/1.m4s"/>
          <SegmentURL media="audio/2.m4s"/>
        </SegmentList>
      </Representation>
    </AdaptationSet>
    <AdaptationSet contentType="text" mimeType="application/ttml+xml">
      <Representation id="subs" bandwidth="1000"><BaseURL>subs.ttml</BaseURL></Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func TestDASHPreCache(t *testing.T) {
	Convey("Given a DASH server", t, func() {
		filesystem.SetMemMapFs()

		var mu sync.Mutex
		var requested []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			requested = append(requested, r.URL.Path)
			mu.Unlock()

			switch {
			case r.URL.Path == "/stream/manifest.mpd":
				_, _ = io.WriteString(w, manifest)
			case strings.HasSuffix(r.URL.Path, ".mp4"), strings.HasSuffix(r.URL.Path, ".m4s"):
				_, _ = io.WriteString(w, strings.Repeat("d", 500))
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		m := NewManager(1, 0)
		Reset(func() { _ = m.Release() })
		cfg := cacheConfig("/cache/dash", 10<<20)
		o := &outcome{}

		Convey("a large budget caches one video and one audio representation", func() {
			task := m.PreCache(srv.URL+"/stream/manifest.mpd", cfg, 60_000, o.callbacks())
			<-task.Done()

			So(o.errs, ShouldBeEmpty)
			So(o.completed, ShouldEqual, 1)

			store, err := m.GetOrCreate(cfg)
			So(err, ShouldBeNil)
			for _, path := range []string{
				"/stream/manifest.mpd",
				"/stream/v720/init.mp4",
				"/stream/v720/001.m4s",
				"/stream/v720/003.m4s",
				"/stream/audio/init.mp4",
				"/stream/audio/2.m4s",
			} {
				So(store.IsComplete(srv.URL+path), ShouldBeTrue)
			}
			So(requested, ShouldNotContain, "/stream/v1080/init.mp4")
			So(requested, ShouldNotContain, "/stream/v720/004.m4s")
			So(requested, ShouldNotContain, "/stream/subs.ttml")
		})

		Convey("a small budget interleaves and stops after the segment in flight", func() {
			task := m.PreCache(srv.URL+"/stream/manifest.mpd", cfg, 5, o.callbacks())
			<-task.Done()

			So(task.Budget, ShouldEqual, 1875)
			So(o.completed, ShouldEqual, 1)

			store, err := m.GetOrCreate(cfg)
			So(err, ShouldBeNil)
			So(store.IsComplete(srv.URL+"/stream/v720/init.mp4"), ShouldBeTrue)
			So(store.Contains(srv.URL+"/stream/v720/003.m4s"), ShouldBeFalse)
		})
	})
}

func TestManifestHelpers(t *testing.T) {
	Convey("Template identifiers expand with optional zero padding", t, func() {
		rep := mpdRepresentation{ID: "v1", Bandwidth: 2000}
		So(expandTemplate("$RepresentationID$/$Number%05d$.m4s", rep, 7, 0), ShouldEqual, "v1/00007.m4s")
		So(expandTemplate("$Bandwidth$/$Time$.m4s", rep, 1, 9000), ShouldEqual, "2000/9000.m4s")
		So(expandTemplate("a$$b", rep, 1, 0), ShouldEqual, "a$b")
	})

	Convey("Segment timelines expand their repeat counts", t, func() {
		start := int64(100)
		tmpl := &mpdSegmentTemplate{
			Media:    "$Time$.m4s",
			Timeline: []mpdS{{T: &start, D: 10, R: 2}, {D: 5}},
		}
		So(templateSegments(tmpl, mpdRepresentation{}, 0), ShouldResemble, []string{"100.m4s", "110.m4s", "120.m4s", "130.m4s"})
	})

	Convey("Durations follow xs:duration", t, func() {
		So(parseISODuration("PT12S"), ShouldEqual, 12)
		So(parseISODuration("PT1H2M3.5S"), ShouldEqual, 3723.5)
		So(parseISODuration("P1DT1S"), ShouldEqual, 86401)
		So(parseISODuration("garbage"), ShouldEqual, 0)
	})
}
