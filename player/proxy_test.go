package player

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xmedia/xmedia/network"
	"github.com/xmedia/xmedia/source"
)

func TestProxy(t *testing.T) {
	Convey("Given an upstream and a proxy in front of it", t, func() {
		var (
			mu     sync.Mutex
			ranges []string
		)

		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			ranges = append(ranges, r.Header.Get("Range"))
			mu.Unlock()

			switch r.URL.Path {
			case "/live/master.m3u8":
				_, _ = io.WriteString(w, "#EXTM3U\n#EXT-X-KEY:METHOD=AES-128,URI=\"https://keys.example/k\"\nhttps://cdn.example/a/seg1.ts\nseg2.ts\n")
			case "/clip.mp4":
				if r.Header.Get("Range") != "" {
					w.Header().Set("Content-Range", "bytes 2-4/10")
					w.WriteHeader(http.StatusPartialContent)
					_, _ = io.WriteString(w, "234")
					return
				}
				_, _ = io.WriteString(w, "0123456789")
			default:
				http.NotFound(w, r)
			}
		}))
		defer upstream.Close()

		var done []string
		p := NewProxy(network.NewUpstream(nil), func(url string, err error) {
			mu.Lock()
			defer mu.Unlock()
			done = append(done, url)
		})
		front := httptest.NewServer(p.Handler())
		defer front.Close()
		p.SetBaseURL(front.URL)

		Convey("Rewrite should map http URLs and leave others alone", func() {
			So(p.Rewrite("https://cdn.example/a/b.m3u8?t=1"), ShouldEqual, front.URL+"/https/cdn.example/a/b.m3u8?t=1")
			So(p.Rewrite("/local/file.mp4"), ShouldEqual, "/local/file.mp4")
		})

		Convey("An unbound proxy refuses requests", func() {
			resp, err := http.Get(p.Rewrite(upstream.URL + "/clip.mp4"))
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Adaptive playlists are read through the data path and rewritten", func() {
			var opened []string
			dataPath := network.SourceFunc(func(ctx context.Context, url string) (io.ReadCloser, error) {
				opened = append(opened, url)
				return network.NewUpstream(nil).Open(ctx, url)
			})
			p.Bind(source.NewDescriptor(upstream.URL+"/live/master.m3u8", dataPath))

			resp, err := http.Get(p.Rewrite(upstream.URL + "/live/master.m3u8"))
			So(err, ShouldBeNil)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			So(resp.Header.Get("Content-Type"), ShouldEqual, playlistContentType)
			So(opened, ShouldResemble, []string{upstream.URL + "/live/master.m3u8"})
			So(string(body), ShouldContainSubstring, front.URL+"/https/cdn.example/a/seg1.ts")
			So(string(body), ShouldContainSubstring, `URI="`+front.URL+`/https/keys.example/k"`)
			So(string(body), ShouldContainSubstring, "\nseg2.ts\n")
			So(done, ShouldResemble, []string{upstream.URL + "/live/master.m3u8"})
		})

		Convey("Progressive media passes straight through with ranges", func() {
			p.Bind(source.NewDescriptor(upstream.URL+"/clip.mp4", nil))

			req, _ := http.NewRequest(http.MethodGet, p.Rewrite(upstream.URL+"/clip.mp4"), nil)
			req.Header.Set("Range", "bytes=2-4")
			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusPartialContent)
			So(string(body), ShouldEqual, "234")
			So(resp.Header.Get("Content-Range"), ShouldEqual, "bytes 2-4/10")
			So(ranges[len(ranges)-1], ShouldEqual, "bytes=2-4")
		})

		Convey("Upstream statuses are forwarded", func() {
			p.Bind(source.NewDescriptor(upstream.URL+"/live/master.m3u8", nil))

			resp, err := http.Get(p.Rewrite(upstream.URL + "/live/missing.m3u8"))
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("upstreamURL rejects unknown schemes", t, func() {
		So(upstreamURL("ftp", "a", "b", ""), ShouldEqual, "")
		So(upstreamURL("https", "a.example", "x/y.ts", "q=1"), ShouldEqual, "https://a.example/x/y.ts?q=1")
		So(strings.HasPrefix(upstreamURL("http", "h:8080", "/z", ""), "http://h:8080/z"), ShouldBeTrue)
	})
}
