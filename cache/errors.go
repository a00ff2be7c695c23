package cache

import "errors"

var (
	// ErrDirectoryInUse is returned when another live store already owns the directory.
	ErrDirectoryInUse = errors.New("cache directory is already in use")

	// ErrStoreReleased is returned by operations on a released store.
	ErrStoreReleased = errors.New("cache store released")

	// ErrPreCacheCancelled is reported to onError when a pre-cache task is cancelled by its caller.
	ErrPreCacheCancelled = errors.New("pre-cache cancelled")

	// ErrCacheDisabled is reported when pre-caching is requested with the cache disabled.
	ErrCacheDisabled = errors.New("cache is disabled")

	// ErrNegativeDuration is reported when a pre-cache target duration is below zero.
	ErrNegativeDuration = errors.New("pre-cache target duration is negative")

	// ErrEntryTooLarge is returned when a single resource exceeds the whole cache.
	ErrEntryTooLarge = errors.New("resource exceeds cache size")
)
