package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/grafov/m3u8"
	"github.com/xmedia/xmedia/constant"
	"github.com/xmedia/xmedia/network"
	"github.com/xmedia/xmedia/source"
	"golang.org/x/time/rate"
)

// Downloader fetches a resource tree, reporting every chunk of bytes read.
// It returns ctx's error when cancelled.
type Downloader interface {
	Download(ctx context.Context, progress func(n int64)) error
}

const chunkSize = 32 * 1024

// newDownloader picks the download strategy for url. HLS playlists and DASH
// manifests are walked segment by segment; everything else is fetched as a single
// resource whose prefix is kept when the download is cut short.
func newDownloader(rawURL string, src network.Source, limiter *rate.Limiter) Downloader {
	switch source.Classify(rawURL) {
	case source.AdaptiveHLS:
		return &hlsDownloader{url: rawURL, src: src, limiter: limiter}
	case source.AdaptiveDASH:
		return &dashDownloader{url: rawURL, src: src, limiter: limiter}
	default:
		return &resourceDownloader{url: rawURL, src: src, limiter: limiter}
	}
}

// fetch drains one resource through src so the caching layer stores it.
func fetch(ctx context.Context, src network.Source, rawURL string, limiter *rate.Limiter, progress func(int64)) error {
	rc, err := src.Open(ctx, rawURL)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, chunkSize)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			if limiter != nil {
				if werr := limiter.WaitN(ctx, n); werr != nil {
					return werr
				}
			}
			progress(int64(n))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

type resourceDownloader struct {
	url     string
	src     network.Source
	limiter *rate.Limiter
}

func (d *resourceDownloader) Download(ctx context.Context, progress func(int64)) error {
	if err := fetch(ctx, d.src, d.url, d.limiter, progress); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// hlsDownloader fetches a media playlist and then its segments in order.
// Cancellation is checked between segments; a segment in flight is completed.
type hlsDownloader struct {
	url     string
	src     network.Source
	limiter *rate.Limiter
}

func (d *hlsDownloader) Download(ctx context.Context, progress func(int64)) error {
	media, mediaURL, err := d.mediaPlaylist(ctx, progress)
	if err != nil {
		return err
	}

	base, err := url.Parse(mediaURL)
	if err != nil {
		return fmt.Errorf("playlist url: %w", err)
	}

	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		ref, err := url.Parse(seg.URI)
		if err != nil {
			return fmt.Errorf("segment uri %q: %w", seg.URI, err)
		}

		segmentCtx := context.WithoutCancel(ctx)
		if err := fetch(segmentCtx, d.src, base.ResolveReference(ref).String(), d.limiter, progress); err != nil {
			return err
		}
	}

	return ctx.Err()
}

// mediaPlaylist resolves a master playlist to the variant closest to the assumed bitrate.
func (d *hlsDownloader) mediaPlaylist(ctx context.Context, progress func(int64)) (*m3u8.MediaPlaylist, string, error) {
	current := d.url

	// a master playlist points at media playlists; nesting deeper than that is malformed
	for depth := 0; depth < 2; depth++ {
		playlist, kind, err := d.decode(ctx, current, progress)
		if err != nil {
			return nil, "", err
		}

		switch kind {
		case m3u8.MEDIA:
			return playlist.(*m3u8.MediaPlaylist), current, nil
		case m3u8.MASTER:
			next, err := pickVariant(playlist.(*m3u8.MasterPlaylist), current)
			if err != nil {
				return nil, "", err
			}
			current = next
		}
	}

	return nil, "", fmt.Errorf("%s: no media playlist", d.url)
}

func (d *hlsDownloader) decode(ctx context.Context, rawURL string, progress func(int64)) (m3u8.Playlist, m3u8.ListType, error) {
	rc, err := d.src.Open(ctx, rawURL)
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, 0, err
	}
	progress(int64(len(body)))

	playlist, kind, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, 0, fmt.Errorf("decode playlist %s: %w", rawURL, err)
	}
	return playlist, kind, nil
}

// pickVariant returns the absolute URL of the highest-bandwidth variant within the
// assumed bitrate, or of the lowest one when all exceed it.
func pickVariant(master *m3u8.MasterPlaylist, masterURL string) (string, error) {
	var best, lowest *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		if lowest == nil || v.Bandwidth < lowest.Bandwidth {
			lowest = v
		}
		if int64(v.Bandwidth) <= constant.AssumedBitrate && (best == nil || v.Bandwidth > best.Bandwidth) {
			best = v
		}
	}

	if best == nil {
		best = lowest
	}
	if best == nil {
		return "", errors.New("master playlist has no variants")
	}

	base, err := url.Parse(masterURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(best.URI)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
