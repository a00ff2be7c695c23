// Package source classifies media URLs into the stream kinds an engine knows how to load.
package source

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/xmedia/xmedia/network"
)

// Kind is the stream flavour of a media URL.
type Kind int

const (
	Progressive Kind = iota
	AdaptiveHLS
	AdaptiveDASH
	SmoothStreaming
	Local
)

func (k Kind) String() string {
	switch k {
	case AdaptiveHLS:
		return "hls"
	case AdaptiveDASH:
		return "dash"
	case SmoothStreaming:
		return "smooth"
	case Local:
		return "local"
	default:
		return "progressive"
	}
}

// Adaptive reports whether the kind carries multiple renditions.
func (k Kind) Adaptive() bool {
	return k == AdaptiveHLS || k == AdaptiveDASH || k == SmoothStreaming
}

var smoothPath = regexp.MustCompile(`\.isml?(/manifest(\(.+\))?)?$`)

// Classify maps a URL to its Kind. The first matching rule wins:
// local schemes, then explicit manifest extensions, then inference from the path.
func Classify(rawURL string) Kind {
	lower := strings.ToLower(strings.TrimSpace(rawURL))

	if strings.HasPrefix(lower, "file://") || strings.HasPrefix(lower, "content://") {
		return Local
	}

	switch {
	case strings.HasSuffix(lower, ".m3u8") || strings.Contains(lower, ".m3u8?"):
		return AdaptiveHLS
	case strings.HasSuffix(lower, ".mpd") || strings.Contains(lower, ".mpd?"):
		return AdaptiveDASH
	}

	return inferFromPath(lower)
}

func inferFromPath(lower string) Kind {
	path := lower
	if u, err := url.Parse(lower); err == nil && u.Path != "" {
		path = u.Path
	}

	switch {
	case strings.HasSuffix(path, ".m3u8"):
		return AdaptiveHLS
	case strings.HasSuffix(path, ".mpd"):
		return AdaptiveDASH
	case smoothPath.MatchString(path):
		return SmoothStreaming
	default:
		return Progressive
	}
}

// SupportsQualitySelection reports whether the URL points at an adaptive stream.
func SupportsQualitySelection(rawURL string) bool {
	return Classify(rawURL).Adaptive()
}

// Descriptor is what an engine loads: the URL, its kind and the data path media bytes flow through.
type Descriptor struct {
	URL      string
	Kind     Kind
	DataPath network.Source
}

// NewDescriptor classifies rawURL and binds it to dataPath.
func NewDescriptor(rawURL string, dataPath network.Source) Descriptor {
	return Descriptor{
		URL:      rawURL,
		Kind:     Classify(rawURL),
		DataPath: dataPath,
	}
}
