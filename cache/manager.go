// Package cache implements the process-wide disk cache: a bounded LRU blob store,
// the caching data path players read through, and cancellable pre-fetching.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/filesystem"
	"github.com/xmedia/xmedia/log"
	"github.com/xmedia/xmedia/metrics"
	"github.com/xmedia/xmedia/network"
	"github.com/xmedia/xmedia/where"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var errManagerReleased = errors.New("cache manager released")

// Manager owns at most one live Store, bound to the config it was built from.
// Pre-cache tasks run on a bounded worker pool detached from their callers.
type Manager struct {
	mu    sync.Mutex
	store *Store
	cfg   config.Cache

	workers int
	limiter *rate.Limiter

	pool    *errgroup.Group
	pending sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelCauseFunc

	// newDownloader is replaceable in tests.
	newDownloader func(url string, src network.Source, limiter *rate.Limiter) Downloader
	upstream      func() network.Source
}

// NewManager returns a manager running at most workers pre-cache tasks at once,
// throttled to maxBytesPerSecond when positive.
func NewManager(workers int, maxBytesPerSecond int64) *Manager {
	if workers <= 0 {
		workers = 1
	}

	m := &Manager{
		workers:       workers,
		newDownloader: newDownloader,
		upstream:      func() network.Source { return network.NewUpstream(nil) },
	}

	if maxBytesPerSecond > 0 {
		burst := int(maxBytesPerSecond)
		if burst < chunkSize {
			burst = chunkSize
		}
		m.limiter = rate.NewLimiter(rate.Limit(maxBytesPerSecond), burst)
	}

	m.resetPool()
	return m
}

func (m *Manager) resetPool() {
	m.ctx, m.cancel = context.WithCancelCause(context.Background())
	m.pool = &errgroup.Group{}
	m.pool.SetLimit(m.workers)
}

// Directory resolves where a config's store lives.
func Directory(cfg config.Cache) string {
	if cfg.Directory != "" {
		return cfg.Directory
	}
	return where.MediaCache(cfg.DirectoryName)
}

// GetOrCreate returns the live store when it was built from cfg. Otherwise the
// previous store is released first and a new one is opened.
func (m *Manager) GetOrCreate(cfg config.Cache) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreate(cfg)
}

func (m *Manager) getOrCreate(cfg config.Cache) (*Store, error) {
	if m.store != nil && m.cfg == cfg {
		return m.store, nil
	}

	if m.store != nil {
		if err := m.store.release(); err != nil {
			log.Warnf("release cache store: %v", err)
		}
		m.store = nil
		m.cfg = config.Cache{}
	}

	store, err := openStore(Directory(cfg), cfg.MaxSizeBytes)
	if err != nil {
		return nil, err
	}

	m.store = store
	m.cfg = cfg
	return store, nil
}

// CreateCachingDataPath returns the data path a player reads media through.
// A disabled cache yields the plain upstream.
func (m *Manager) CreateCachingDataPath(cfg config.Cache, listener network.TransferListener) (network.Source, error) {
	upstream := network.NewUpstream(listener)
	if !cfg.Enabled {
		return upstream, nil
	}

	store, err := m.GetOrCreate(cfg)
	if err != nil {
		return nil, err
	}
	return NewCachingSource(store, upstream), nil
}

// Size is the live store's occupancy, 0 without one.
func (m *Manager) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return 0
	}
	return m.store.Size()
}

// Clear releases the store and deletes its directory.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}

	dir := m.store.Dir()
	m.releaseLocked()

	if err := filesystem.API().RemoveAll(dir); err != nil {
		return fmt.Errorf("remove cache directory: %w", err)
	}
	metrics.CacheSizeBytes.Set(0)
	log.Infof("cache cleared: %s", dir)
	return nil
}

// Release cancels pending pre-cache work and releases the store. Idempotent.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseLocked()
}

func (m *Manager) releaseLocked() error {
	m.cancel(errManagerReleased)
	m.resetPool()

	if m.store == nil {
		return nil
	}

	err := m.store.release()
	m.store = nil
	m.cfg = config.Cache{}
	return err
}

// Wait blocks until every pre-cache task submitted so far has finished.
func (m *Manager) Wait() {
	m.pending.Wait()
}
