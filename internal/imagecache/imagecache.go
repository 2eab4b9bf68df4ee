// Package imagecache implements the persistent image cache (C3): rendered
// translated pages stored as WebP in a content-addressed directory tree,
// with a JSON sidecar mapping translation key to file metadata. Readers
// and writers serialize per key; distinct keys proceed in parallel.
package imagecache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mangatl/mangatl/internal/cachekey"
)

// Metadata is the sidecar record for one cached rendered page.
type Metadata struct {
	TranslationKey string    `json:"translation_key"`
	MangaRef       string    `json:"manga_ref"`
	PageIndex      int       `json:"page_index"`
	Language       string    `json:"language"`
	EngineID       string    `json:"engine_id"`
	Fingerprint    string    `json:"fingerprint"`
	FilePath       string    `json:"file_path"`
	Size           int64     `json:"size"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessed   time.Time `json:"last_accessed"`
	AccessCount    int       `json:"access_count"`
}

// Cache is the persistent, content-addressed image cache rooted at Dir.
type Cache struct {
	dir string

	mu       sync.Mutex // guards sidecar + keyLocks map
	sidecar  map[string]*Metadata
	keyLocks map[string]*sync.Mutex
}

// Open loads (or creates) the cache rooted at dir, reading its sidecar
// metadata file if present.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imagecache: create root %s: %w", dir, err)
	}
	c := &Cache{
		dir:      dir,
		sidecar:  make(map[string]*Metadata),
		keyLocks: make(map[string]*sync.Mutex),
	}
	if err := c.loadSidecar(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) sidecarPath() string {
	return filepath.Join(c.dir, "cache_metadata.json")
}

func (c *Cache) loadSidecar() error {
	data, err := os.ReadFile(c.sidecarPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("imagecache: read sidecar: %w", err)
	}
	var m map[string]*Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		// A corrupted sidecar is treated as empty rather than fatal: entries
		// are rebuilt on demand as Has() encounters orphaned files.
		return nil
	}
	c.mu.Lock()
	c.sidecar = m
	c.mu.Unlock()
	return nil
}

// writeSidecarLocked must be called with c.mu held. It writes the sidecar
// atomically: write-temp then rename.
func (c *Cache) writeSidecarLocked() error {
	data, err := json.Marshal(c.sidecar)
	if err != nil {
		return fmt.Errorf("imagecache: marshal sidecar: %w", err)
	}
	tmp := c.sidecarPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("imagecache: write temp sidecar: %w", err)
	}
	if err := os.Rename(tmp, c.sidecarPath()); err != nil {
		return fmt.Errorf("imagecache: rename sidecar: %w", err)
	}
	return nil
}

func (c *Cache) pathFor(t cachekey.Translation) string {
	return filepath.Join(c.dir, t.Shard(), t.Hash()+".webp")
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.keyLocks[key] = l
	}
	return l
}

// Has reports whether both the rendered file and its metadata exist. If
// the file is present but metadata is missing, metadata is rebuilt on the
// fly from the file's stat info.
func (c *Cache) Has(t cachekey.Translation) bool {
	key := t.String()
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	path := c.pathFor(t)
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return false
	}

	c.mu.Lock()
	_, ok := c.sidecar[key]
	c.mu.Unlock()
	if !ok {
		c.mu.Lock()
		c.sidecar[key] = &Metadata{
			TranslationKey: key,
			MangaRef:       t.MangaRef,
			PageIndex:      t.PageIndex,
			Language:       t.Language,
			EngineID:       t.EngineID,
			FilePath:       path,
			Size:           info.Size(),
			CreatedAt:      info.ModTime(),
			LastAccessed:   info.ModTime(),
		}
		_ = c.writeSidecarLocked()
		c.mu.Unlock()
	}
	return true
}

// Get reads the cached rendered bytes, bumping access bookkeeping. Returns
// ok=false on any read failure rather than propagating an error, matching
// the "transient I/O error" policy: a cache miss is always safe.
func (c *Cache) Get(t cachekey.Translation) ([]byte, bool) {
	key := t.String()
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(c.pathFor(t))
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	if meta, ok := c.sidecar[key]; ok {
		meta.LastAccessed = time.Now().UTC()
		meta.AccessCount++
		_ = c.writeSidecarLocked()
	}
	c.mu.Unlock()
	return data, true
}

// Put writes renderedBytes (expected to already be WebP-encoded by the
// renderer) to a temp file then atomically renames it into place, and
// updates the sidecar. Never leaves a half-written file visible to readers.
func (c *Cache) Put(t cachekey.Translation, renderedBytes []byte, fingerprint string) error {
	key := t.String()
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	path := c.pathFor(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("imagecache: create shard dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, renderedBytes, 0o644); err != nil {
		return fmt.Errorf("imagecache: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("imagecache: rename into place: %w", err)
	}

	now := time.Now().UTC()
	c.mu.Lock()
	c.sidecar[key] = &Metadata{
		TranslationKey: key,
		MangaRef:       t.MangaRef,
		PageIndex:      t.PageIndex,
		Language:       t.Language,
		EngineID:       t.EngineID,
		Fingerprint:    fingerprint,
		FilePath:       path,
		Size:           int64(len(renderedBytes)),
		CreatedAt:      now,
		LastAccessed:   now,
	}
	err := c.writeSidecarLocked()
	c.mu.Unlock()
	return err
}

// ClearWork removes all entries whose metadata matches both mangaRef and
// engineID, returning the count removed.
func (c *Cache) ClearWork(mangaRef, engineID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, meta := range c.sidecar {
		if meta.MangaRef != mangaRef || meta.EngineID != engineID {
			continue
		}
		_ = os.Remove(meta.FilePath)
		delete(c.sidecar, key)
		removed++
	}
	_ = c.writeSidecarLocked()
	return removed
}

// CleanupOld removes entries whose LastAccessed is older than maxAge.
func (c *Cache) CleanupOld(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for key, meta := range c.sidecar {
		if meta.LastAccessed.Before(cutoff) {
			_ = os.Remove(meta.FilePath)
			delete(c.sidecar, key)
			removed++
		}
	}
	_ = c.writeSidecarLocked()
	return removed
}

// EvictLRUUntil removes least-recently-accessed entries until the total
// cached size is at or below maxBytes, used once a configured size quota
// is exceeded.
func (c *Cache) EvictLRUUntil(maxBytes int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	entries := make([]*Metadata, 0, len(c.sidecar))
	for _, meta := range c.sidecar {
		entries = append(entries, meta)
		total += meta.Size
	}
	if total <= maxBytes {
		return 0
	}

	sortByLastAccessed(entries)

	removed := 0
	for _, meta := range entries {
		if total <= maxBytes {
			break
		}
		_ = os.Remove(meta.FilePath)
		delete(c.sidecar, meta.TranslationKey)
		total -= meta.Size
		removed++
	}
	_ = c.writeSidecarLocked()
	return removed
}

// Fingerprint returns the stored content fingerprint for key, if present.
// Callers use this to detect a stale entry before trusting Get's bytes.
func (c *Cache) Fingerprint(t cachekey.Translation) (string, bool) {
	key := t.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.sidecar[key]
	if !ok {
		return "", false
	}
	return meta.Fingerprint, true
}

// Delete removes the cached file and sidecar entry for key, if any. Used to
// evict an entry whose fingerprint no longer matches the source image.
func (c *Cache) Delete(t cachekey.Translation) {
	key := t.String()
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	meta, ok := c.sidecar[key]
	if ok {
		delete(c.sidecar, key)
		_ = c.writeSidecarLocked()
	}
	c.mu.Unlock()

	if ok {
		_ = os.Remove(meta.FilePath)
	} else {
		_ = os.Remove(c.pathFor(t))
	}
}

// List returns every cached metadata entry, for administrative listings.
func (c *Cache) List() []Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Metadata, 0, len(c.sidecar))
	for _, meta := range c.sidecar {
		out = append(out, *meta)
	}
	return out
}

func sortByLastAccessed(entries []*Metadata) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].LastAccessed.Before(entries[j-1].LastAccessed); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
