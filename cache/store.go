package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/metafates/gache"
	"github.com/spf13/afero"
	"github.com/xmedia/xmedia/filesystem"
	"github.com/xmedia/xmedia/log"
	"github.com/xmedia/xmedia/metrics"
)

var (
	claimsMu sync.Mutex
	claims   = make(map[string]struct{})
)

func claim(dir string) error {
	claimsMu.Lock()
	defer claimsMu.Unlock()

	if _, taken := claims[dir]; taken {
		return ErrDirectoryInUse
	}
	claims[dir] = struct{}{}
	return nil
}

func unclaim(dir string) {
	claimsMu.Lock()
	defer claimsMu.Unlock()
	delete(claims, dir)
}

// Store is a size-bounded LRU blob store in one directory.
// Only one live Store may own a directory per process.
type Store struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	file     *gache.Cache[*index]
	idx      *index
	total    int64
	dirty    bool
	released bool
}

func openStore(dir string, maxBytes int64) (*Store, error) {
	dir = filepath.Clean(dir)
	if err := claim(dir); err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}

	fs := filesystem.API()
	if err := fs.MkdirAll(dir, os.ModePerm); err != nil {
		unclaim(dir)
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	marker := filepath.Join(dir, ".writable")
	if err := fs.WriteFile(marker, nil, 0o644); err != nil {
		unclaim(dir)
		return nil, fmt.Errorf("cache directory is not writable: %w", err)
	}
	_ = fs.Remove(marker)

	// leftovers of writes interrupted by a crash
	if leftovers, err := afero.Glob(fs.Fs, filepath.Join(dir, "*.tmp")); err == nil {
		for _, name := range leftovers {
			_ = fs.Remove(name)
		}
	}

	s := &Store{
		dir:      dir,
		maxBytes: maxBytes,
		file:     newIndexFile(dir),
	}

	idx, _, err := s.file.Get()
	if err != nil {
		log.Warnf("cache index unreadable, starting empty: %v", err)
	}
	if idx == nil || idx.Entries == nil {
		idx = newIndex()
	}
	s.idx = idx

	s.reconcile()
	s.evict()
	if err := s.flush(); err != nil {
		unclaim(dir)
		return nil, fmt.Errorf("write cache index: %w", err)
	}

	log.With(log.Fields{"dir": dir, "max": maxBytes, "size": s.total}).Infof("cache store opened")
	return s, nil
}

// reconcile drops index entries whose blob vanished.
func (s *Store) reconcile() {
	fs := filesystem.API()
	for key, e := range s.idx.Entries {
		info, err := fs.Stat(filepath.Join(s.dir, e.Blob))
		if err != nil || info.Size() != e.Size {
			delete(s.idx.Entries, key)
			s.dirty = true
		}
	}
	s.total = s.idx.total()
}

// evict removes least recently used entries while the store is over its bound.
func (s *Store) evict() {
	if s.total <= s.maxBytes {
		return
	}

	fs := filesystem.API()
	for _, e := range s.idx.leastRecent() {
		if s.total <= s.maxBytes {
			break
		}
		_ = fs.Remove(filepath.Join(s.dir, e.Blob))
		delete(s.idx.Entries, e.Key)
		s.total -= e.Size
		s.dirty = true
		metrics.CacheEvictionsTotal.Inc()
		log.Debugf("cache evicted %s (%d bytes)", e.Key, e.Size)
	}
	metrics.CacheSizeBytes.Set(float64(s.total))
}

func (s *Store) flush() error {
	if !s.dirty {
		return nil
	}
	if err := s.file.Set(s.idx); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func blobName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".blob"
}

// Dir is the directory the store owns.
func (s *Store) Dir() string {
	return s.dir
}

// MaxBytes is the store's size bound.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Size is the total size of the cached blobs.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Len is the number of cached resources.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.idx.Entries)
}

// Contains reports whether key is cached, in full or as a prefix.
func (s *Store) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.idx.Entries[key]
	return ok && !s.released
}

// Get opens the fully cached blob for key and marks it as recently used.
func (s *Store) Get(key string) (io.ReadCloser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entry(key)
	if !ok || e.Partial {
		return nil, false
	}
	return s.open(key, e)
}

// GetPrefix opens the partially cached blob for key and returns its length.
func (s *Store) GetPrefix(key string) (io.ReadCloser, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entry(key)
	if !ok || !e.Partial {
		return nil, 0, false
	}
	rc, ok := s.open(key, e)
	return rc, e.Size, ok
}

// IsComplete reports whether key is cached in full.
func (s *Store) IsComplete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entry(key)
	return ok && !e.Partial
}

func (s *Store) entry(key string) (*indexEntry, bool) {
	if s.released {
		return nil, false
	}
	e, ok := s.idx.Entries[key]
	return e, ok
}

func (s *Store) open(key string, e *indexEntry) (io.ReadCloser, bool) {
	f, err := filesystem.API().Open(filepath.Join(s.dir, e.Blob))
	if err != nil {
		delete(s.idx.Entries, key)
		s.total -= e.Size
		s.dirty = true
		return nil, false
	}

	s.idx.touch(e)
	s.dirty = true
	return f, true
}

// Remove deletes key from the store.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrStoreReleased
	}

	e, ok := s.idx.Entries[key]
	if !ok {
		return nil
	}

	delete(s.idx.Entries, key)
	s.total -= e.Size
	s.dirty = true
	metrics.CacheSizeBytes.Set(float64(s.total))

	if err := filesystem.API().Remove(filepath.Join(s.dir, e.Blob)); err != nil {
		return err
	}
	return s.flush()
}

// Begin starts writing key. Nothing is visible until Commit.
func (s *Store) Begin(key string) (*Writer, error) {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()

	if released {
		return nil, ErrStoreReleased
	}

	f, err := afero.TempFile(filesystem.API().Fs, s.dir, "*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp blob: %w", err)
	}

	return &Writer{store: s, key: key, file: f}, nil
}

func (s *Store) commit(key, tmpPath string, size int64, partial bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fs := filesystem.API()

	if s.released {
		_ = fs.Remove(tmpPath)
		return ErrStoreReleased
	}
	if size > s.maxBytes {
		_ = fs.Remove(tmpPath)
		return ErrEntryTooLarge
	}

	// a prefix never replaces a complete entry or a longer prefix
	if old, ok := s.idx.Entries[key]; ok && partial && (!old.Partial || old.Size >= size) {
		_ = fs.Remove(tmpPath)
		s.idx.touch(old)
		s.dirty = true
		return s.flush()
	}

	blob := blobName(key)
	if err := fs.Rename(tmpPath, filepath.Join(s.dir, blob)); err != nil {
		_ = fs.Remove(tmpPath)
		return fmt.Errorf("commit blob: %w", err)
	}

	if old, ok := s.idx.Entries[key]; ok {
		s.total -= old.Size
	}

	e := &indexEntry{Key: key, Blob: blob, Size: size, Partial: partial}
	s.idx.touch(e)
	s.idx.Entries[key] = e
	s.total += size
	s.dirty = true

	s.evict()
	metrics.CacheSizeBytes.Set(float64(s.total))
	return s.flush()
}

// release persists the index and frees the directory. Idempotent.
func (s *Store) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true
	defer unclaim(s.dir)

	return s.flush()
}

// Writer streams one resource into the store.
type Writer struct {
	store   *Store
	key     string
	file    afero.File
	written int64
	done    bool
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

// Commit makes the written bytes visible under the key as the whole resource.
func (w *Writer) Commit() error {
	return w.commit(false)
}

// CommitPartial keeps the written bytes as a prefix of the resource.
// Nothing is stored when nothing was written.
func (w *Writer) CommitPartial() error {
	if w.written == 0 {
		w.Abort()
		return nil
	}
	return w.commit(true)
}

func (w *Writer) commit(partial bool) error {
	if w.done {
		return nil
	}
	w.done = true

	name := w.file.Name()
	if err := w.file.Close(); err != nil {
		_ = filesystem.API().Remove(name)
		return err
	}
	return w.store.commit(w.key, name, w.written, partial)
}

// Abort discards the written bytes.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true

	name := w.file.Name()
	_ = w.file.Close()
	_ = filesystem.API().Remove(name)
}
