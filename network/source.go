package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xmedia/xmedia/constant"
	"github.com/xmedia/xmedia/filesystem"
)

// Source opens a media resource (manifest, segment or progressive file) by URL.
type Source interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, url string) (io.ReadCloser, error)

func (f SourceFunc) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	return f(ctx, url)
}

// RangeSource can open a resource at a byte offset.
type RangeSource interface {
	OpenFrom(ctx context.Context, url string, offset int64) (io.ReadCloser, error)
}

// TransferListener observes network transfers. Bandwidth meters implement it.
type TransferListener interface {
	OnTransferStart(url string)
	OnBytesTransferred(url string, n int)
	OnTransferEnd(url string)
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s: status %d", e.URL, e.Code)
}

// IsStatusError reports whether err wraps a StatusError and returns it.
func IsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	ok := errors.As(err, &se)
	return se, ok
}

// Upstream reads resources over HTTP(S), or from the active filesystem for file:// URLs.
type Upstream struct {
	Client   *http.Client
	Listener TransferListener
}

// NewUpstream returns an Upstream on the shared Client reporting transfers to listener (may be nil).
func NewUpstream(listener TransferListener) *Upstream {
	return &Upstream{Client: Client, Listener: listener}
}

// Open issues a GET for url. The caller must close the returned reader.
func (u *Upstream) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if path, ok := strings.CutPrefix(url, "file://"); ok {
		return filesystem.API().Open(path)
	}

	resp, err := u.Fetch(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// OpenFrom reads url starting at offset. Servers ignoring the Range header are
// handled by discarding the first offset bytes of the full response.
func (u *Upstream) OpenFrom(ctx context.Context, url string, offset int64) (io.ReadCloser, error) {
	if offset <= 0 {
		return u.Open(ctx, url)
	}

	if path, ok := strings.CutPrefix(url, "file://"); ok {
		f, err := filesystem.API().Open(path)
		if err != nil {
			return nil, err
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
		return f, nil
	}

	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-", offset))

	resp, err := u.Fetch(ctx, url, header)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusPartialContent {
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("skip to %d in %s: %w", offset, url, err)
		}
	}
	return resp.Body, nil
}

// Fetch issues a GET for url with the extra headers (e.g. Range) and returns the raw
// response. The body reports to the listener like Open does; 206 counts as success.
func (u *Upstream) Fetch(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", constant.UserAgent)

	client := u.Client
	if client == nil {
		client = Client
	}

	if u.Listener != nil {
		u.Listener.OnTransferStart(url)
	}

	resp, err := client.Do(req)
	if err != nil {
		u.end(url)
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		u.end(url)
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	resp.Body = &transferReader{body: resp.Body, url: url, upstream: u}
	return resp, nil
}

func (u *Upstream) end(url string) {
	if u.Listener != nil {
		u.Listener.OnTransferEnd(url)
	}
}

// transferReader forwards byte counts to the listener and ends the transfer exactly once on Close.
type transferReader struct {
	body     io.ReadCloser
	url      string
	upstream *Upstream
	closed   bool
}

func (r *transferReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 && r.upstream.Listener != nil {
		r.upstream.Listener.OnBytesTransferred(r.url, n)
	}
	return n, err
}

func (r *transferReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.upstream.end(r.url)
	return r.body.Close()
}
