package cache

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/xmedia/xmedia/constant"
	"github.com/xmedia/xmedia/network"
	"golang.org/x/time/rate"
)

// maxOpenEndedSegments bounds template walks over manifests without a duration.
const maxOpenEndedSegments = 10_000

type mpd struct {
	XMLName  xml.Name    `xml:"MPD"`
	Duration string      `xml:"mediaPresentationDuration,attr"`
	BaseURL  string      `xml:"BaseURL"`
	Periods  []mpdPeriod `xml:"Period"`
}

type mpdPeriod struct {
	Duration       string             `xml:"duration,attr"`
	BaseURL        string             `xml:"BaseURL"`
	AdaptationSets []mpdAdaptationSet `xml:"AdaptationSet"`
}

type mpdAdaptationSet struct {
	MimeType        string              `xml:"mimeType,attr"`
	ContentType     string              `xml:"contentType,attr"`
	BaseURL         string              `xml:"BaseURL"`
	SegmentTemplate *mpdSegmentTemplate `xml:"SegmentTemplate"`
	Representations []mpdRepresentation `xml:"Representation"`
}

type mpdRepresentation struct {
	ID              string              `xml:"id,attr"`
	Bandwidth       int64               `xml:"bandwidth,attr"`
	MimeType        string              `xml:"mimeType,attr"`
	BaseURL         string              `xml:"BaseURL"`
	SegmentTemplate *mpdSegmentTemplate `xml:"SegmentTemplate"`
	SegmentList     *mpdSegmentList     `xml:"SegmentList"`
}

type mpdSegmentTemplate struct {
	Initialization string `xml:"initialization,attr"`
	Media          string `xml:"media,attr"`
	StartNumber    *int64 `xml:"startNumber,attr"`
	Duration       int64  `xml:"duration,attr"`
	Timescale      int64  `xml:"timescale,attr"`
	Timeline       []mpdS `xml:"SegmentTimeline>S"`
}

type mpdS struct {
	T *int64 `xml:"t,attr"`
	D int64  `xml:"d,attr"`
	R int64  `xml:"r,attr"`
}

type mpdSegmentList struct {
	Initialization *struct {
		SourceURL string `xml:"sourceURL,attr"`
	} `xml:"Initialization"`
	SegmentURLs []struct {
		Media string `xml:"media,attr"`
	} `xml:"SegmentURL"`
}

func (a mpdAdaptationSet) kind() string {
	for _, s := range []string{a.ContentType, a.MimeType, lo.FirstOrEmpty(a.Representations).MimeType} {
		switch {
		case strings.HasPrefix(s, "video"):
			return "video"
		case strings.HasPrefix(s, "audio"):
			return "audio"
		case s != "":
			return s
		}
	}
	return ""
}

// dashTrack is the resource list of one chosen representation.
type dashTrack struct {
	init     string
	segments []string
	// whole is set when the representation is one addressable file.
	whole bool
}

// dashDownloader fetches an MPD and then, for the first period, the initialization
// and media segments of one representation per audio and video adaptation set.
// Segments of different sets are interleaved so a cut download stays playable.
type dashDownloader struct {
	url     string
	src     network.Source
	limiter *rate.Limiter
}

func (d *dashDownloader) Download(ctx context.Context, progress func(int64)) error {
	manifest, err := d.manifest(ctx, progress)
	if err != nil {
		return err
	}

	tracks, err := dashTracks(manifest, d.url)
	if err != nil {
		return err
	}

	for _, t := range tracks {
		if t.init == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.segment(ctx, t.init, progress); err != nil {
			return err
		}
	}

	longest := lo.Max(lo.Map(tracks, func(t dashTrack, _ int) int { return len(t.segments) }))
	for i := 0; i < longest; i++ {
		for _, t := range tracks {
			if i >= len(t.segments) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			if t.whole {
				err = fetch(ctx, d.src, t.segments[i], d.limiter, progress)
			} else {
				err = d.segment(ctx, t.segments[i], progress)
			}

			// open-ended templates run until the origin has no more segments
			if se, ok := network.IsStatusError(err); ok && se.Code == http.StatusNotFound && i > 0 {
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
		}
	}

	return ctx.Err()
}

// segment completes a segment in flight even when ctx is cancelled meanwhile.
func (d *dashDownloader) segment(ctx context.Context, rawURL string, progress func(int64)) error {
	return fetch(context.WithoutCancel(ctx), d.src, rawURL, d.limiter, progress)
}

func (d *dashDownloader) manifest(ctx context.Context, progress func(int64)) (*mpd, error) {
	rc, err := d.src.Open(ctx, d.url)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	progress(int64(len(body)))

	var manifest mpd
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", d.url, err)
	}
	return &manifest, nil
}

func dashTracks(manifest *mpd, manifestURL string) ([]dashTrack, error) {
	if len(manifest.Periods) == 0 {
		return nil, errors.New("manifest has no periods")
	}
	period := manifest.Periods[0]

	duration := parseISODuration(period.Duration)
	if duration <= 0 {
		duration = parseISODuration(manifest.Duration)
	}

	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, err
	}
	base = resolveBase(resolveBase(base, manifest.BaseURL), period.BaseURL)

	var tracks []dashTrack
	for _, set := range period.AdaptationSets {
		if k := set.kind(); k != "video" && k != "audio" {
			continue
		}
		rep, ok := pickRepresentation(set.Representations)
		if !ok {
			continue
		}

		tmpl := rep.SegmentTemplate
		if tmpl == nil {
			tmpl = set.SegmentTemplate
		}

		track, err := representationTrack(resolveBase(resolveBase(base, set.BaseURL), rep.BaseURL), rep, tmpl, duration)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if len(tracks) == 0 {
		return nil, errors.New("manifest has no audio or video representations")
	}
	return tracks, nil
}

// pickRepresentation mirrors pickVariant: the highest bandwidth within the assumed
// bitrate, else the lowest.
func pickRepresentation(reps []mpdRepresentation) (mpdRepresentation, bool) {
	if len(reps) == 0 {
		return mpdRepresentation{}, false
	}

	lowest := lo.MinBy(reps, func(a, b mpdRepresentation) bool { return a.Bandwidth < b.Bandwidth })
	within := lo.Filter(reps, func(r mpdRepresentation, _ int) bool { return r.Bandwidth <= constant.AssumedBitrate })
	if len(within) == 0 {
		return lowest, true
	}
	return lo.MaxBy(within, func(a, b mpdRepresentation) bool { return a.Bandwidth > b.Bandwidth }), true
}

func representationTrack(base *url.URL, rep mpdRepresentation, tmpl *mpdSegmentTemplate, duration float64) (dashTrack, error) {
	resolve := func(ref string) (string, error) {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("segment uri %q: %w", ref, err)
		}
		return base.ResolveReference(u).String(), nil
	}

	var (
		track   dashTrack
		refs    []string
		initRef string
	)

	switch {
	case rep.SegmentList != nil:
		if rep.SegmentList.Initialization != nil {
			initRef = rep.SegmentList.Initialization.SourceURL
		}
		for _, s := range rep.SegmentList.SegmentURLs {
			refs = append(refs, s.Media)
		}

	case tmpl != nil && tmpl.Media != "":
		if tmpl.Initialization != "" {
			initRef = expandTemplate(tmpl.Initialization, rep, 0, 0)
		}
		refs = templateSegments(tmpl, rep, duration)

	default:
		track.whole = true
		refs = []string{""}
	}

	var err error
	if initRef != "" {
		if track.init, err = resolve(initRef); err != nil {
			return dashTrack{}, err
		}
	}
	for _, ref := range refs {
		abs, err := resolve(ref)
		if err != nil {
			return dashTrack{}, err
		}
		track.segments = append(track.segments, abs)
	}
	return track, nil
}

func templateSegments(tmpl *mpdSegmentTemplate, rep mpdRepresentation, duration float64) []string {
	number := int64(1)
	if tmpl.StartNumber != nil {
		number = *tmpl.StartNumber
	}
	timescale := tmpl.Timescale
	if timescale <= 0 {
		timescale = 1
	}

	var refs []string

	if len(tmpl.Timeline) > 0 {
		var t int64
		for _, s := range tmpl.Timeline {
			if s.T != nil {
				t = *s.T
			}
			// a negative repeat count means "until the next S or the period end"
			repeat := s.R
			if repeat < 0 {
				repeat = 0
			}
			for i := int64(0); i <= repeat && len(refs) < maxOpenEndedSegments; i++ {
				refs = append(refs, expandTemplate(tmpl.Media, rep, number, t))
				number++
				t += s.D
			}
		}
		return refs
	}

	if tmpl.Duration <= 0 {
		return []string{expandTemplate(tmpl.Media, rep, number, 0)}
	}

	count := maxOpenEndedSegments
	if duration > 0 {
		count = int(math.Ceil(duration * float64(timescale) / float64(tmpl.Duration)))
		count = min(count, maxOpenEndedSegments)
	}
	for i := 0; i < count; i++ {
		refs = append(refs, expandTemplate(tmpl.Media, rep, number, int64(i)*tmpl.Duration))
		number++
	}
	return refs
}

var templateIdentifier = regexp.MustCompile(`\$(RepresentationID|Number|Time|Bandwidth)(%0(\d+)d)?\$`)

func expandTemplate(tmpl string, rep mpdRepresentation, number, time int64) string {
	out := templateIdentifier.ReplaceAllStringFunc(tmpl, func(m string) string {
		parts := templateIdentifier.FindStringSubmatch(m)

		var value string
		switch parts[1] {
		case "RepresentationID":
			return rep.ID
		case "Number":
			value = strconv.FormatInt(number, 10)
		case "Time":
			value = strconv.FormatInt(time, 10)
		case "Bandwidth":
			value = strconv.FormatInt(rep.Bandwidth, 10)
		}

		if width, err := strconv.Atoi(parts[3]); err == nil && len(value) < width {
			value = strings.Repeat("0", width-len(value)) + value
		}
		return value
	})
	return strings.ReplaceAll(out, "$$", "$")
}

func resolveBase(base *url.URL, ref string) *url.URL {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return base
	}
	u, err := url.Parse(ref)
	if err != nil {
		return base
	}
	return base.ResolveReference(u)
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// parseISODuration returns seconds for an xs:duration such as PT1H2M3.5S, or 0.
func parseISODuration(s string) float64 {
	m := isoDuration.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}

	var total float64
	for i, unit := range []float64{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0
		}
		total += v * unit
	}
	return total
}
