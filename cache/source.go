package cache

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/xmedia/xmedia/log"
	"github.com/xmedia/xmedia/metrics"
	"github.com/xmedia/xmedia/network"
)

// CachingSource reads through the store and writes what it read back. A resource
// read to the end is stored whole; one closed early is kept as a prefix, and a later
// read serves that prefix from disk before resuming upstream after it.
// Store failures never fail a read: the upstream is used instead.
type CachingSource struct {
	store    *Store
	upstream network.Source
}

// NewCachingSource wraps upstream with store.
func NewCachingSource(store *Store, upstream network.Source) *CachingSource {
	return &CachingSource{store: store, upstream: upstream}
}

func (c *CachingSource) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if rc, ok := c.store.Get(url); ok {
		metrics.CacheHitsTotal.Inc()
		return rc, nil
	}

	if prefix, size, ok := c.store.GetPrefix(url); ok {
		rc, err := c.resume(ctx, url, prefix, size)
		if err == nil {
			metrics.CacheHitsTotal.Inc()
			return c.tee(url, rc), nil
		}
		log.Debugf("cache resume of %s after %d bytes failed: %v", url, size, err)
	}
	metrics.CacheMissesTotal.Inc()

	rc, err := c.upstream.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return c.tee(url, rc), nil
}

// resume joins the cached prefix with the upstream remainder. A prefix that turns
// out to be the whole resource is served on its own.
func (c *CachingSource) resume(ctx context.Context, url string, prefix io.ReadCloser, size int64) (io.ReadCloser, error) {
	rest, err := c.openFrom(ctx, url, size)
	if se, ok := network.IsStatusError(err); ok && se.Code == http.StatusRequestedRangeNotSatisfiable {
		return prefix, nil
	}
	if err != nil {
		_ = prefix.Close()
		return nil, err
	}
	return &joinedReader{Reader: io.MultiReader(prefix, rest), closers: []io.Closer{prefix, rest}}, nil
}

func (c *CachingSource) openFrom(ctx context.Context, url string, offset int64) (io.ReadCloser, error) {
	if rs, ok := c.upstream.(network.RangeSource); ok {
		return rs.OpenFrom(ctx, url, offset)
	}

	rc, err := c.upstream.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	if _, err := io.CopyN(io.Discard, rc, offset); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return rc, nil
}

func (c *CachingSource) tee(url string, rc io.ReadCloser) io.ReadCloser {
	w, err := c.store.Begin(url)
	if err != nil {
		log.Debugf("cache write skipped for %s: %v", url, err)
		return rc
	}
	return &teeReader{src: rc, w: w, url: url}
}

type joinedReader struct {
	io.Reader
	closers []io.Closer
}

func (j *joinedReader) Close() error {
	var errs []error
	for _, c := range j.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// teeReader copies what is read into a store writer. EOF commits the whole
// resource; Close before EOF keeps what was read as a prefix.
type teeReader struct {
	src io.ReadCloser
	w   *Writer
	url string
}

func (t *teeReader) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)

	if n > 0 && t.w != nil {
		if _, werr := t.w.Write(p[:n]); werr != nil {
			log.Debugf("cache write for %s abandoned: %v", t.url, werr)
			t.w.Abort()
			t.w = nil
		}
	}

	if errors.Is(err, io.EOF) && t.w != nil {
		t.finish(t.w.Commit())
	}

	return n, err
}

func (t *teeReader) Close() error {
	if t.w != nil {
		t.finish(t.w.CommitPartial())
	}
	return t.src.Close()
}

func (t *teeReader) finish(err error) {
	if err != nil && !errors.Is(err, ErrStoreReleased) {
		log.Debugf("cache commit for %s failed: %v", t.url, err)
	}
	t.w = nil
}
