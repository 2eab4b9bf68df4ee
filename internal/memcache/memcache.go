// Package memcache implements the bounded in-process memory cache (C2): a
// translation-key indexed map of rendered page bytes, evicted LRU once the
// configured entry count is exceeded. No disk interaction.
package memcache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries is used when a non-positive capacity is requested.
const DefaultMaxEntries = 256

// Entry is one cached rendered page plus the bookkeeping the coordinator
// needs to decide whether it is still valid and to report stats.
type Entry struct {
	RenderedBytes []byte
	Fingerprint   string
	Width         int
	Height        int
	CreatedAt     time.Time
	LastAccessed  time.Time
	AccessCount   int
}

// Cache is a concurrency-safe, bounded LRU cache keyed by translation key.
// Len and List may proceed in parallel; Get (which updates access
// bookkeeping and LRU recency) and writes are exclusive.
type Cache struct {
	mu    sync.RWMutex
	inner *lru.Cache[string, *Entry]
}

// New creates a Cache with the given maximum entry count.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	inner, err := lru.New[string, *Entry](maxEntries)
	if err != nil {
		// lru.New only errors on size <= 0, already guarded above.
		panic(err)
	}
	return &Cache{inner: inner}
}

// Get returns the cached entry for key, bumping its access bookkeeping and
// its recency in the LRU.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	e.LastAccessed = time.Now().UTC()
	e.AccessCount++
	return e, true
}

// Put inserts or replaces the entry for key.
func (c *Cache) Put(key string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.LastAccessed.IsZero() {
		e.LastAccessed = e.CreatedAt
	}
	c.inner.Add(key, e)
}

// Delete removes the entry for key, if any.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner.Len()
}

// List returns every cached key and its entry, for administrative listings.
func (c *Cache) List() map[string]*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*Entry, c.inner.Len())
	for _, key := range c.inner.Keys() {
		if e, ok := c.inner.Peek(key); ok {
			out[key] = e
		}
	}
	return out
}

// ClearWork removes every entry whose key belongs to mangaRef, as parsed by
// the caller-supplied belongsTo predicate (the cache itself is key-format
// agnostic; internal/cachekey.ParseTranslation supplies the predicate).
func (c *Cache) ClearWork(belongsTo func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.inner.Keys() {
		if belongsTo(key) {
			c.inner.Remove(key)
			removed++
		}
	}
	return removed
}
