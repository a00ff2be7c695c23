package cache

import (
	"path/filepath"

	"github.com/metafates/gache"
	"github.com/samber/lo"
	"github.com/xmedia/xmedia/filesystem"
	"golang.org/x/exp/slices"
)

const indexFileName = "index.json"

// indexEntry describes one cached resource.
type indexEntry struct {
	Key  string `json:"key"`
	Blob string `json:"blob"`
	Size int64  `json:"size"`
	// Partial entries hold only the first Size bytes of the resource.
	Partial bool `json:"partial,omitempty"`
	// Access orders entries for eviction; higher is more recent.
	Access uint64 `json:"access"`
}

// index is the persisted form of a store's bookkeeping.
type index struct {
	Entries map[string]*indexEntry `json:"entries"`
	Clock   uint64                 `json:"clock"`
}

func newIndex() *index {
	return &index{Entries: make(map[string]*indexEntry)}
}

func (i *index) touch(e *indexEntry) {
	i.Clock++
	e.Access = i.Clock
}

// leastRecent returns entries ordered from least to most recently used.
func (i *index) leastRecent() []*indexEntry {
	entries := lo.Values(i.Entries)
	slices.SortFunc(entries, func(a, b *indexEntry) int {
		switch {
		case a.Access < b.Access:
			return -1
		case a.Access > b.Access:
			return 1
		default:
			return 0
		}
	})
	return entries
}

func (i *index) total() int64 {
	var total int64
	for _, e := range i.Entries {
		total += e.Size
	}
	return total
}

func newIndexFile(dir string) *gache.Cache[*index] {
	return gache.New[*index](
		&gache.Options{
			Path:       filepath.Join(dir, indexFileName),
			FileSystem: &filesystem.GacheFs{},
		},
	)
}
