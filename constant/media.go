package constant

import "time"

// DefaultCacheDirectoryName is the cache subdirectory used when no explicit directory is configured.
const DefaultCacheDirectoryName = "xmedia_cache"

// AssumedBitrate is the average stream bitrate, in bits per second, used to turn a
// pre-cache duration into a byte budget.
const AssumedBitrate int64 = 3_000_000

// ProgressInterval is the sampling period of the per-player progress ticker.
const ProgressInterval = 100 * time.Millisecond

// PreCacheProgressStep is the minimum percentage delta between two pre-cache progress reports.
const PreCacheProgressStep = 5.0
