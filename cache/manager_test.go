package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/filesystem"
	"github.com/xmedia/xmedia/network"
	"golang.org/x/time/rate"
)

func cacheConfig(dir string, max int64) config.Cache {
	return config.Cache{Enabled: true, MaxSizeBytes: max, Directory: dir, DirectoryName: "unused"}
}

func TestManager(t *testing.T) {
	Convey("Given a manager", t, func() {
		filesystem.SetMemMapFs()
		m := NewManager(2, 0)
		Reset(func() { _ = m.Release() })

		configA := cacheConfig("/cache/m", 1000)
		configB := cacheConfig("/cache/m", 50)

		Convey("the same config returns the same store", func() {
			a, err := m.GetOrCreate(configA)
			So(err, ShouldBeNil)
			b, err := m.GetOrCreate(configA)
			So(err, ShouldBeNil)
			So(a, ShouldEqual, b)
		})

		Convey("a different config releases the previous store first", func() {
			a, err := m.GetOrCreate(configA)
			So(err, ShouldBeNil)
			So(put(a, "one", 40), ShouldBeNil)
			So(put(a, "two", 40), ShouldBeNil)
			So(m.Size(), ShouldEqual, 80)

			b, err := m.GetOrCreate(configB)
			So(err, ShouldBeNil)
			So(b, ShouldNotEqual, a)

			_, err = a.Begin("three")
			So(errors.Is(err, ErrStoreReleased), ShouldBeTrue)

			So(m.Size(), ShouldEqual, b.Size())
			So(m.Size(), ShouldBeLessThanOrEqualTo, 50)
		})

		Convey("Size is 0 without a store", func() {
			So(m.Size(), ShouldEqual, 0)
		})

		Convey("a disabled cache yields the plain upstream", func() {
			src, err := m.CreateCachingDataPath(config.Cache{}, nil)
			So(err, ShouldBeNil)
			_, plain := src.(*network.Upstream)
			So(plain, ShouldBeTrue)
			So(m.Size(), ShouldEqual, 0)
		})

		Convey("store construction failures are returned", func() {
			filesystem.SetReadOnlyFs()
			defer filesystem.SetMemMapFs()

			_, err := m.CreateCachingDataPath(cacheConfig("/cache/ro", 10), nil)
			So(err, ShouldNotBeNil)
		})

		Convey("Clear releases the store and wipes its directory", func() {
			a, err := m.GetOrCreate(configA)
			So(err, ShouldBeNil)
			So(put(a, "one", 40), ShouldBeNil)

			So(m.Clear(), ShouldBeNil)
			So(m.Size(), ShouldEqual, 0)

			exists, _ := filesystem.API().DirExists("/cache/m")
			So(exists, ShouldBeFalse)

			b, err := m.GetOrCreate(configA)
			So(err, ShouldBeNil)
			So(b.Size(), ShouldEqual, 0)
		})

		Convey("Release is idempotent", func() {
			_, err := m.GetOrCreate(configA)
			So(err, ShouldBeNil)
			So(m.Release(), ShouldBeNil)
			So(m.Release(), ShouldBeNil)
			So(m.Size(), ShouldEqual, 0)
		})
	})
}

func TestCachingSource(t *testing.T) {
	Convey("Given a caching data path over an HTTP server", t, func() {
		filesystem.SetMemMapFs()

		var (
			hits   atomic.Int32
			mu     sync.Mutex
			ranges []string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			switch r.URL.Path {
			case "/broken":
				w.WriteHeader(http.StatusInternalServerError)
			case "/clip.mp4":
				mu.Lock()
				ranges = append(ranges, r.Header.Get("Range"))
				mu.Unlock()
				http.ServeContent(w, r, "clip.mp4", time.Time{}, strings.NewReader("0123456789"))
			default:
				_, _ = io.WriteString(w, "segment:"+r.URL.Path)
			}
		}))
		defer srv.Close()

		m := NewManager(1, 0)
		Reset(func() { _ = m.Release() })

		src, err := m.CreateCachingDataPath(cacheConfig("/cache/src", 1<<20), nil)
		So(err, ShouldBeNil)

		readAll := func(url string) (string, error) {
			rc, err := src.Open(context.Background(), url)
			if err != nil {
				return "", err
			}
			defer rc.Close()
			b, err := io.ReadAll(rc)
			return string(b), err
		}

		Convey("a fully read resource is served from disk afterwards", func() {
			body, err := readAll(srv.URL + "/1.ts")
			So(err, ShouldBeNil)
			So(body, ShouldEqual, "segment:/1.ts")

			body, err = readAll(srv.URL + "/1.ts")
			So(err, ShouldBeNil)
			So(body, ShouldEqual, "segment:/1.ts")
			So(hits.Load(), ShouldEqual, 1)
		})

		Convey("a partially read resource keeps its prefix", func() {
			rc, err := src.Open(context.Background(), srv.URL+"/clip.mp4")
			So(err, ShouldBeNil)
			buf := make([]byte, 4)
			n, _ := io.ReadFull(rc, buf)
			So(n, ShouldEqual, 4)
			So(rc.Close(), ShouldBeNil)

			So(m.Size(), ShouldEqual, 4)
			store, err := m.GetOrCreate(cacheConfig("/cache/src", 1<<20))
			So(err, ShouldBeNil)
			So(store.Contains(srv.URL+"/clip.mp4"), ShouldBeTrue)
			So(store.IsComplete(srv.URL+"/clip.mp4"), ShouldBeFalse)

			Convey("and a later read resumes upstream after it", func() {
				body, err := readAll(srv.URL + "/clip.mp4")
				So(err, ShouldBeNil)
				So(body, ShouldEqual, "0123456789")
				So(ranges, ShouldResemble, []string{"", "bytes=4-"})

				So(store.IsComplete(srv.URL+"/clip.mp4"), ShouldBeTrue)
				So(m.Size(), ShouldEqual, 10)

				body, err = readAll(srv.URL + "/clip.mp4")
				So(err, ShouldBeNil)
				So(body, ShouldEqual, "0123456789")
				So(ranges, ShouldHaveLength, 2)
			})

			Convey("and a shorter read does not shrink it", func() {
				rc, err := src.Open(context.Background(), srv.URL+"/clip.mp4")
				So(err, ShouldBeNil)
				_, _ = io.ReadFull(rc, make([]byte, 2))
				So(rc.Close(), ShouldBeNil)

				So(m.Size(), ShouldEqual, 4)
			})
		})

		Convey("upstream failures propagate", func() {
			_, err := readAll(srv.URL + "/broken")
			se, ok := network.IsStatusError(err)
			So(ok, ShouldBeTrue)
			So(se.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("a released store falls back to the upstream", func() {
			So(m.Release(), ShouldBeNil)

			body, err := readAll(srv.URL + "/3.ts")
			So(err, ShouldBeNil)
			So(body, ShouldEqual, "segment:/3.ts")
		})
	})
}

// chunkDownloader reports fixed-size chunks until cancelled.
type chunkDownloader struct {
	chunk int64
}

func (d chunkDownloader) Download(ctx context.Context, progress func(int64)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		progress(d.chunk)
	}
}

// blockingDownloader waits for cancellation.
type blockingDownloader struct {
	started chan struct{}
}

func (d blockingDownloader) Download(ctx context.Context, _ func(int64)) error {
	close(d.started)
	<-ctx.Done()
	return ctx.Err()
}

type failingDownloader struct{}

func (failingDownloader) Download(context.Context, func(int64)) error {
	return errors.New("boom")
}

type outcome struct {
	mu        sync.Mutex
	progress  []float64
	completed int
	errs      []error
}

func (o *outcome) callbacks() PreCacheCallbacks {
	return PreCacheCallbacks{
		OnProgress: func(p float64) {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.progress = append(o.progress, p)
		},
		OnComplete: func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.completed++
		},
		OnError: func(err error) {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.errs = append(o.errs, err)
		},
	}
}

func TestPreCache(t *testing.T) {
	Convey("Given a manager with a replaceable downloader", t, func() {
		filesystem.SetMemMapFs()
		m := NewManager(2, 0)
		Reset(func() { _ = m.Release() })

		cfg := cacheConfig("/cache/pre", 10<<20)
		o := &outcome{}

		Convey("the byte budget follows the assumed bitrate", func() {
			So(Budget(10_000), ShouldEqual, 3_750_000)
		})

		Convey("reaching the budget completes the task", func() {
			m.newDownloader = func(string, network.Source, *rate.Limiter) Downloader {
				return chunkDownloader{chunk: 100_000}
			}

			task := m.PreCache("https://a.example/v.m3u8", cfg, 10_000, o.callbacks())
			<-task.Done()

			So(task.Budget, ShouldEqual, 3_750_000)
			So(o.completed, ShouldEqual, 1)
			So(o.errs, ShouldBeEmpty)

			So(len(o.progress), ShouldBeGreaterThan, 0)
			prev := 0.0
			for _, p := range o.progress {
				So(p-prev, ShouldBeGreaterThanOrEqualTo, 5)
				So(p, ShouldBeLessThanOrEqualTo, 100)
				prev = p
			}
		})

		Convey("an external cancel is reported as an error", func() {
			started := make(chan struct{})
			m.newDownloader = func(string, network.Source, *rate.Limiter) Downloader {
				return blockingDownloader{started: started}
			}

			task := m.PreCache("https://a.example/v.m3u8", cfg, 10_000, o.callbacks())
			<-started
			task.Cancel()
			<-task.Done()

			So(o.completed, ShouldEqual, 0)
			So(o.errs, ShouldHaveLength, 1)
			So(errors.Is(o.errs[0], ErrPreCacheCancelled), ShouldBeTrue)
		})

		Convey("downloader failures reach onError only", func() {
			m.newDownloader = func(string, network.Source, *rate.Limiter) Downloader {
				return failingDownloader{}
			}

			task := m.PreCache("https://a.example/v.mp4", cfg, 10_000, o.callbacks())
			<-task.Done()

			So(o.completed, ShouldEqual, 0)
			So(o.errs, ShouldHaveLength, 1)
			So(o.errs[0].Error(), ShouldEqual, "boom")
		})

		Convey("a negative target duration is an error", func() {
			task := m.PreCache("https://a.example/v.mp4", cfg, -1, o.callbacks())
			<-task.Done()

			So(task.Budget, ShouldEqual, 0)
			So(o.completed, ShouldEqual, 0)
			So(o.errs, ShouldHaveLength, 1)
			So(errors.Is(o.errs[0], ErrNegativeDuration), ShouldBeTrue)
		})

		Convey("a disabled cache is an error", func() {
			task := m.PreCache("https://a.example/v.mp4", config.Cache{}, 10_000, o.callbacks())
			<-task.Done()

			So(o.errs, ShouldHaveLength, 1)
			So(errors.Is(o.errs[0], ErrCacheDisabled), ShouldBeTrue)
		})

		Convey("releasing the manager stops running tasks", func() {
			started := make(chan struct{})
			m.newDownloader = func(string, network.Source, *rate.Limiter) Downloader {
				return blockingDownloader{started: started}
			}

			task := m.PreCache("https://a.example/v.m3u8", cfg, 10_000, o.callbacks())
			<-started
			So(m.Release(), ShouldBeNil)

			select {
			case <-task.Done():
			case <-time.After(2 * time.Second):
				So("task still running", ShouldBeEmpty)
			}
			So(errors.Is(o.errs[0], ErrStoreReleased), ShouldBeTrue)
			m.Wait()
		})
	})
}

func TestProgressivePreCache(t *testing.T) {
	Convey("Given a progressive file much larger than the budget", t, func() {
		filesystem.SetMemMapFs()

		body := bytes.Repeat([]byte("v"), 32<<20)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.ServeContent(w, r, "video.mp4", time.Time{}, bytes.NewReader(body))
		}))
		defer srv.Close()

		m := NewManager(1, 0)
		Reset(func() { _ = m.Release() })
		cfg := cacheConfig("/cache/progressive", 10<<20)
		o := &outcome{}

		Convey("the downloaded prefix stays cached after completion", func() {
			task := m.PreCache(srv.URL+"/video.mp4", cfg, 10_000, o.callbacks())
			<-task.Done()

			So(o.errs, ShouldBeEmpty)
			So(o.completed, ShouldEqual, 1)

			So(m.Size(), ShouldBeGreaterThan, 0)
			So(m.Size(), ShouldBeLessThan, int64(len(body)))

			store, err := m.GetOrCreate(cfg)
			So(err, ShouldBeNil)
			So(store.Contains(srv.URL+"/video.mp4"), ShouldBeTrue)
			So(store.IsComplete(srv.URL+"/video.mp4"), ShouldBeFalse)
		})
	})
}

func TestHLSPreCache(t *testing.T) {
	Convey("Given an HLS server", t, func() {
		filesystem.SetMemMapFs()

		var mu sync.Mutex
		var requested []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			requested = append(requested, r.URL.Path)
			mu.Unlock()

			switch r.URL.Path {
			case "/master.m3u8":
				_, _ = io.WriteString(w, "#EXTM3U\n"+
					"#EXT-X-STREAM-INF:BANDWIDTH=6000000,RESOLUTION=1920x1080\nhi/index.m3u8\n"+
					"#EXT-X-STREAM-INF:BANDWIDTH=2000000,RESOLUTION=1280x720\nmid/index.m3u8\n"+
					"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\nlo/index.m3u8\n")
			case "/mid/index.m3u8":
				_, _ = io.WriteString(w, "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:4\n#EXT-X-MEDIA-SEQUENCE:0\n"+
					"#EXTINF:4.0,\nseg0.ts\n#EXTINF:4.0,\nseg1.ts\n#EXTINF:4.0,\nseg2.ts\n#EXT-X-ENDLIST\n")
			default:
				if strings.HasSuffix(r.URL.Path, ".ts") {
					_, _ = io.WriteString(w, strings.Repeat("s", 1000))
					return
				}
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		m := NewManager(1, 1<<20)
		Reset(func() { _ = m.Release() })
		cfg := cacheConfig("/cache/hls", 10<<20)
		o := &outcome{}

		Convey("a large budget caches the chosen variant's playlist and every segment", func() {
			task := m.PreCache(srv.URL+"/master.m3u8", cfg, 60_000, o.callbacks())
			<-task.Done()

			So(o.errs, ShouldBeEmpty)
			So(o.completed, ShouldEqual, 1)

			store, err := m.GetOrCreate(cfg)
			So(err, ShouldBeNil)
			So(store.Contains(srv.URL+"/master.m3u8"), ShouldBeTrue)
			So(store.Contains(srv.URL+"/mid/index.m3u8"), ShouldBeTrue)
			So(store.Contains(srv.URL+"/mid/seg2.ts"), ShouldBeTrue)
			So(requested, ShouldNotContain, "/hi/index.m3u8")
		})

		Convey("a small budget stops after the segment in flight", func() {
			task := m.PreCache(srv.URL+"/master.m3u8", cfg, 3, o.callbacks())
			<-task.Done()

			So(task.Budget, ShouldEqual, 1125)
			So(o.completed, ShouldEqual, 1)

			store, err := m.GetOrCreate(cfg)
			So(err, ShouldBeNil)
			So(store.Contains(srv.URL+"/mid/seg0.ts"), ShouldBeTrue)
			So(store.Contains(srv.URL+"/mid/seg2.ts"), ShouldBeFalse)
		})
	})
}
