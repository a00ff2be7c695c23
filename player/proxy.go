package player

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xmedia/xmedia/log"
	"github.com/xmedia/xmedia/network"
	"github.com/xmedia/xmedia/source"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// binding is the data path the proxy currently serves.
type binding struct {
	dataPath network.Source
	adaptive bool
}

// Proxy is a loopback HTTP server an external engine reads media through.
// Adaptive sources are served from the bound data path (and so the disk cache);
// progressive sources and byte-range requests go straight upstream.
type Proxy struct {
	router  chi.Router
	direct  *network.Upstream
	onDone  func(url string, err error)
	bound   atomic.Pointer[binding]
	server  *http.Server
	baseURL string
}

// NewProxy returns an unstarted proxy. onDone is called once per served resource.
func NewProxy(direct *network.Upstream, onDone func(url string, err error)) *Proxy {
	p := &Proxy{direct: direct, onDone: onDone}

	r := chi.NewRouter()
	r.Get("/{scheme}/{host}/*", p.serve)
	p.router = r

	return p
}

// Handler exposes the router, mainly for tests.
func (p *Proxy) Handler() http.Handler {
	return p.router
}

// Start listens on an ephemeral loopback port.
func (p *Proxy) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("proxy listen: %w", err)
	}

	p.baseURL = "http://" + ln.Addr().String()
	p.server = &http.Server{
		Handler:           p.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("media proxy stopped: %v", err)
		}
	}()

	return nil
}

// SetBaseURL overrides the address rewritten URLs point at.
func (p *Proxy) SetBaseURL(base string) {
	p.baseURL = strings.TrimSuffix(base, "/")
}

// Bind routes subsequent requests through d's data path.
func (p *Proxy) Bind(d source.Descriptor) {
	dataPath := d.DataPath
	if dataPath == nil {
		dataPath = p.direct
	}
	p.bound.Store(&binding{dataPath: dataPath, adaptive: d.Kind.Adaptive()})
}

// Unbind drops the current data path.
func (p *Proxy) Unbind() {
	p.bound.Store(nil)
}

// Rewrite maps an http(s) URL onto the proxy. Other URLs are returned unchanged.
func (p *Proxy) Rewrite(raw string) string {
	if p.baseURL == "" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return raw
	}

	rewritten := p.baseURL + "/" + u.Scheme + "/" + u.Host + u.EscapedPath()
	if u.RawQuery != "" {
		rewritten += "?" + u.RawQuery
	}
	return rewritten
}

// Close shuts the listener down.
func (p *Proxy) Close() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}

func (p *Proxy) serve(w http.ResponseWriter, r *http.Request) {
	target := upstreamURL(chi.URLParam(r, "scheme"), chi.URLParam(r, "host"), chi.URLParam(r, "*"), r.URL.RawQuery)
	if target == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b := p.bound.Load()
	if b == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	var err error
	if !b.adaptive || !fromStart(r.Header.Get("Range")) {
		err = p.passThrough(w, r, target)
	} else {
		err = p.fromDataPath(w, r, b.dataPath, target)
	}

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		log.Warnf("media proxy %s: %v", target, err)
	}
	if p.onDone != nil {
		p.onDone(target, err)
	}
}

func (p *Proxy) fromDataPath(w http.ResponseWriter, r *http.Request, dataPath network.Source, target string) error {
	rc, err := dataPath.Open(r.Context(), target)
	if err != nil {
		writeUpstreamError(w, err)
		return err
	}
	defer rc.Close()

	if source.Classify(target) == source.AdaptiveHLS {
		body, err := io.ReadAll(rc)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return err
		}
		w.Header().Set("Content-Type", playlistContentType)
		_, err = w.Write(p.rewritePlaylist(body))
		return err
	}

	_, err = io.Copy(w, rc)
	return err
}

func (p *Proxy) passThrough(w http.ResponseWriter, r *http.Request, target string) error {
	header := http.Header{}
	if rng := r.Header.Get("Range"); rng != "" {
		header.Set("Range", rng)
	}

	resp, err := p.direct.Fetch(r.Context(), target, header)
	if err != nil {
		writeUpstreamError(w, err)
		return err
	}
	defer resp.Body.Close()

	for _, h := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "Last-Modified", "ETag"} {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	_, err = io.Copy(w, resp.Body)
	return err
}

var uriAttribute = regexp.MustCompile(`URI="(https?://[^"]+)"`)

// rewritePlaylist points absolute URIs inside an HLS playlist back at the proxy.
// Relative URIs already resolve against the proxied path.
func (p *Proxy) rewritePlaylist(body []byte) []byte {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, readBufSize), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "#"):
			line = uriAttribute.ReplaceAllStringFunc(line, func(m string) string {
				inner := uriAttribute.FindStringSubmatch(m)[1]
				return `URI="` + p.Rewrite(inner) + `"`
			})
		case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
			line = p.Rewrite(trimmed)
		}

		out.WriteString(line)
		out.WriteByte('\n')
	}

	return out.Bytes()
}

func upstreamURL(scheme, host, rest, rawQuery string) string {
	if (scheme != "http" && scheme != "https") || host == "" {
		return ""
	}
	target := scheme + "://" + host + "/" + strings.TrimPrefix(rest, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// fromStart reports whether a Range header, if any, asks for the whole resource.
func fromStart(rng string) bool {
	rng = strings.TrimSpace(rng)
	return rng == "" || rng == "bytes=0-"
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	if se, ok := network.IsStatusError(err); ok {
		w.WriteHeader(se.Code)
		return
	}
	w.WriteHeader(http.StatusBadGateway)
}
