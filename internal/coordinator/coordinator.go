// Package coordinator implements the cache coordinator (C5): a unified
// façade over the three cache layers (memory, persistent image, structured
// result), scanning them in order and promoting hits into faster layers
// without ever overwriting a newer entry.
package coordinator

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mangatl/mangatl/internal/cachekey"
	"github.com/mangatl/mangatl/internal/imagecache"
	"github.com/mangatl/mangatl/internal/memcache"
	"github.com/mangatl/mangatl/internal/store"
)

// SourceLayer identifies which cache layer satisfied a lookup.
type SourceLayer string

const (
	SourceMemory  SourceLayer = "memory"
	SourceImage   SourceLayer = "image"
	SourceResult  SourceLayer = "result"
	SourceMiss    SourceLayer = "miss"
)

// Lookup is the result of a layered cache scan.
type Lookup struct {
	Found         bool
	RenderedBytes []byte
	Source        SourceLayer
}

// Stats reports per-layer hit counters and overall hit rate.
type Stats struct {
	MemoryHits  int64
	ImageHits   int64
	ResultHits  int64
	Misses      int64
	TotalLookups int64
}

// HitRate returns the fraction of lookups that were satisfied by any layer.
func (s Stats) HitRate() float64 {
	if s.TotalLookups == 0 {
		return 0
	}
	hits := s.MemoryHits + s.ImageHits + s.ResultHits
	return float64(hits) / float64(s.TotalLookups)
}

// Coordinator is the C5 façade. Layer failures are logged and treated as
// misses; a corrupted entry in one layer never blocks a read from the next.
type Coordinator struct {
	mem   *memcache.Cache
	img   *imagecache.Cache
	st    *store.Store

	mu    sync.Mutex
	stats Stats
}

// New wires a Coordinator over the three cache layers. img may be nil if
// the persistent image cache is unavailable (degraded mode: memory + result
// only).
func New(mem *memcache.Cache, img *imagecache.Cache, st *store.Store) *Coordinator {
	return &Coordinator{mem: mem, img: img, st: st}
}

// Lookup scans C2 -> C3 -> C4 in order. On a C3 hit it promotes into C2; on
// a C4 hit carrying rendered bytes it promotes into both C2 and C3.
// Promotion only fills empty slots — it never overwrites a fresher entry
// already present in a higher layer.
func (c *Coordinator) Lookup(t cachekey.Translation, currentFingerprint string) Lookup {
	t = t.Normalize()
	key := t.String()

	c.mu.Lock()
	c.stats.TotalLookups++
	c.mu.Unlock()

	if e, ok := c.mem.Get(key); ok {
		c.mu.Lock()
		c.stats.MemoryHits++
		c.mu.Unlock()
		return Lookup{Found: true, RenderedBytes: e.RenderedBytes, Source: SourceMemory}
	}

	if c.img != nil {
		if data, ok := safeImageGet(c.img, t, currentFingerprint); ok {
			c.mu.Lock()
			c.stats.ImageHits++
			c.mu.Unlock()
			c.promoteMemory(key, data)
			return Lookup{Found: true, RenderedBytes: data, Source: SourceImage}
		}
	}

	if c.st != nil {
		rec, err := safeResultGet(c.st, key, currentFingerprint)
		if err == nil {
			c.mu.Lock()
			c.stats.ResultHits++
			c.mu.Unlock()
			if len(rec.RenderedBytes) > 0 {
				c.promoteMemory(key, rec.RenderedBytes)
				if c.img != nil {
					if !c.img.Has(t) {
						if putErr := c.img.Put(t, rec.RenderedBytes, rec.Fingerprint); putErr != nil {
							log.Warn().Err(putErr).Str("key", key).Msg("coordinator: promotion to image cache failed")
						}
					}
				}
			}
			return Lookup{Found: true, RenderedBytes: rec.RenderedBytes, Source: SourceResult}
		}
	}

	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	return Lookup{Found: false, Source: SourceMiss}
}

func (c *Coordinator) promoteMemory(key string, data []byte) {
	if _, ok := c.mem.Get(key); ok {
		return
	}
	c.mem.Put(key, &memcache.Entry{RenderedBytes: data})
}

// Store writes rendered pixels (and an optional structured artifact) to
// every applicable layer. Layer failures are logged, never propagated:
// success of any single layer counts as a partial success, matching
// the layer-failure-isolation rule: one bad layer never blocks the rest.
func (c *Coordinator) Store(t cachekey.Translation, renderedBytes []byte, fingerprint string, artifact *store.ResultRecord) {
	t = t.Normalize()
	key := t.String()

	c.mem.Put(key, &memcache.Entry{RenderedBytes: renderedBytes, Fingerprint: fingerprint})

	if c.img != nil {
		if err := c.img.Put(t, renderedBytes, fingerprint); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("coordinator: image cache store failed")
		}
	}

	if c.st != nil && artifact != nil {
		artifact.TranslationKey = key
		artifact.MangaRef = t.MangaRef
		artifact.PageIndex = t.PageIndex
		artifact.Language = t.Language
		artifact.EngineID = t.EngineID
		artifact.Fingerprint = fingerprint
		if err := c.st.PutResult(*artifact); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("coordinator: result cache store failed")
		}
	}
}

// Invalidate scrubs all layers for a given MangaRef across every engine,
// using the memcache's prefix-parse predicate.
func (c *Coordinator) Invalidate(mangaRef string) {
	c.mem.ClearWork(func(key string) bool {
		parsed, ok := cachekey.ParseTranslation(key)
		return ok && parsed.MangaRef == mangaRef
	})
	if c.img != nil {
		for _, meta := range c.img.List() {
			if meta.MangaRef == mangaRef {
				c.img.ClearWork(mangaRef, meta.EngineID)
			}
		}
	}
	if c.st != nil {
		if _, err := c.st.DeleteResultsByMangaRef(mangaRef); err != nil {
			log.Warn().Err(err).Str("manga_ref", mangaRef).Msg("coordinator: result cache invalidate failed")
		}
	}
}

// CacheEntry is one row of an administrative cache listing, normalized
// across layers regardless of which layer's List it came from.
type CacheEntry struct {
	TranslationKey string
	MangaRef       string
	PageIndex      int
	Language       string
	EngineID       string
	Fingerprint    string
	Layer          SourceLayer
}

// ListEntries returns every entry across all three cache layers, for
// administrative tooling. C2 entries carry no structured fields of their
// own, so their translation key is parsed back into MangaRef/PageIndex/
// Language/EngineID via cachekey.ParseTranslation.
func (c *Coordinator) ListEntries() []CacheEntry {
	var out []CacheEntry

	for key, e := range c.mem.List() {
		entry := CacheEntry{TranslationKey: key, Fingerprint: e.Fingerprint, Layer: SourceMemory}
		if parsed, ok := cachekey.ParseTranslation(key); ok {
			entry.MangaRef = parsed.MangaRef
			entry.PageIndex = parsed.PageIndex
			entry.Language = parsed.Language
			entry.EngineID = parsed.EngineID
		}
		out = append(out, entry)
	}

	if c.img != nil {
		for _, meta := range c.img.List() {
			out = append(out, CacheEntry{
				TranslationKey: meta.TranslationKey,
				MangaRef:       meta.MangaRef,
				PageIndex:      meta.PageIndex,
				Language:       meta.Language,
				EngineID:       meta.EngineID,
				Fingerprint:    meta.Fingerprint,
				Layer:          SourceImage,
			})
		}
	}

	if c.st != nil {
		rows, err := c.st.ListResults()
		if err != nil {
			log.Warn().Err(err).Msg("coordinator: list results failed")
		}
		for _, r := range rows {
			out = append(out, CacheEntry{
				TranslationKey: r.TranslationKey,
				MangaRef:       r.MangaRef,
				PageIndex:      r.PageIndex,
				Language:       r.Language,
				EngineID:       r.EngineID,
				Fingerprint:    r.Fingerprint,
				Layer:          SourceResult,
			})
		}
	}

	return out
}

// StatsSnapshot returns the current hit-rate counters.
func (c *Coordinator) StatsSnapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// safeImageGet reads the C3 entry for t only if its stored fingerprint
// matches currentFingerprint. A mismatch means the source image changed
// since this entry was rendered: the stale entry is deleted and the lookup
// reports a miss so it descends to C4.
func safeImageGet(img *imagecache.Cache, t cachekey.Translation, currentFingerprint string) ([]byte, bool) {
	if !img.Has(t) {
		return nil, false
	}
	if storedFingerprint, ok := img.Fingerprint(t); ok && storedFingerprint != currentFingerprint {
		img.Delete(t)
		return nil, false
	}
	return img.Get(t)
}

// safeResultGet reads the C4 row for translationKey, fingerprint-gated by the
// SQL query itself. A not-found result covers both a genuine miss and a
// fingerprint mismatch against a stale row; either way any row left behind
// under a stale fingerprint is deleted so a future lookup never resurrects
// it, matching the "mismatch -> deleted, miss" contract. Deleting when
// nothing matched is a harmless no-op.
func safeResultGet(st *store.Store, translationKey, currentFingerprint string) (store.ResultRecord, error) {
	rec, err := st.GetResult(translationKey, currentFingerprint)
	if err != nil {
		if errors.Is(err, store.ErrResultNotFound) {
			if delErr := st.DeleteResultsForKey(translationKey); delErr != nil {
				log.Warn().Err(delErr).Str("key", translationKey).Msg("coordinator: stale result eviction failed")
			}
		}
		return store.ResultRecord{}, err
	}
	return rec, nil
}
