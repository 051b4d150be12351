package loader

import (
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docdiff/docdiff/internal/model"
)

// Cache keeps recently loaded sources keyed by path, size and mtime, so a
// file that changed on disk is never served stale. Sources are immutable
// once loaded, so sharing them between callers is safe.
type Cache struct {
	entries *lru.Cache[string, *model.Source]
}

// NewCache creates a cache holding up to size sources. size <= 0 disables
// caching and returns nil; a nil *Cache is valid and never hits.
func NewCache(size int) *Cache {
	if size <= 0 {
		return nil
	}
	entries, err := lru.New[string, *model.Source](size)
	if err != nil {
		return nil
	}
	return &Cache{entries: entries}
}

// Key returns the cache key for a local file, or "" when the file cannot be
// stat'ed (remote URIs and missing files are not cached). Take the key
// before reading the file so a write during the read is never cached
// under the newer version.
func (c *Cache) Key(path string) string {
	if c == nil {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
}

// Get returns the source cached under key.
func (c *Cache) Get(key string) (*model.Source, bool) {
	if c == nil || key == "" {
		return nil, false
	}
	return c.entries.Get(key)
}

// Put stores a successfully loaded source under the key taken before it
// was read.
func (c *Cache) Put(key string, src *model.Source) {
	if c == nil || key == "" || src == nil {
		return
	}
	c.entries.Add(key, src)
}

// Len returns the number of cached sources.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c != nil {
		c.entries.Purge()
	}
}
