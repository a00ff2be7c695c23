// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

const (
	// XMedia is the canonical application identifier used for filesystem paths, env prefixes and CLI branding.
	XMedia = "xmedia"

	// Version is the current application semantic version string.
	Version = "0.3.0"

	// UserAgent is sent on every upstream media request.
	UserAgent = "xmedia/" + Version

	// ReleasesPage lists published builds.
	ReleasesPage = "https://github.com/xmedia/xmedia/releases"

	// ReleasesAPI returns the latest published release.
	ReleasesAPI = "https://api.github.com/repos/xmedia/xmedia/releases/latest"
)

// Build metadata, overridden through -ldflags at release time.
var (
	BuiltAt  = "unknown"
	BuiltBy  = "unknown"
	Revision = "unknown"
)
