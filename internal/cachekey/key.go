// Package cachekey canonicalizes the addressable identity of a translation
// request and of the image bytes it produces. Two independent key forms
// exist: the translation key ("what was asked for") and the content
// fingerprint ("what the source actually is"). See content.go for the
// latter.
package cachekey

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Translation addresses a unit of work: a specific page of a specific
// work, in a specific language, via a specific engine.
type Translation struct {
	MangaRef  string
	PageIndex int
	Language  string
	EngineID  string
}

// Normalize returns a copy with canonicalized fields: OS-native MangaRef
// separators are converted to '/', trailing slashes stripped; Language and EngineID are
// lower-cased and trimmed.
func (t Translation) Normalize() Translation {
	t.MangaRef = normalizeMangaRef(t.MangaRef)
	t.Language = strings.ToLower(strings.TrimSpace(t.Language))
	t.EngineID = strings.ToLower(strings.TrimSpace(t.EngineID))
	return t
}

func normalizeMangaRef(ref string) string {
	ref = filepath.ToSlash(ref)
	ref = strings.TrimRight(ref, "/")
	return ref
}

// String renders the canonical colon-delimited form of the key, e.g.
// "translation:/m/one.zip:3:zh:google". This is the form stored as the
// SQL primary key and hashed for filesystem sharding; it is not itself a
// hash, since inverse parsing (for administrative listings) must recover
// the original fields.
func (t Translation) String() string {
	t = t.Normalize()
	return fmt.Sprintf("translation:%s:%d:%s:%s", t.MangaRef, t.PageIndex, t.Language, t.EngineID)
}

// Hash returns the SHA-256 hex digest of String(), suitable as a
// filesystem-safe name for the persistent image cache's sharded tree.
func (t Translation) Hash() string {
	sum := sha256.Sum256([]byte(t.String()))
	return fmt.Sprintf("%x", sum)
}

// Shard returns the first two hex characters of Hash(), used as the
// top-level directory in the content-addressed image cache tree.
func (t Translation) Shard() string {
	h := t.Hash()
	if len(h) < 2 {
		return "00"
	}
	return h[:2]
}

// ParseTranslation is the inverse of Translation.String. Used for
// administrative listings and cache-management tooling; parse failure
// returns ok=false rather than an error, matching the "fails gracefully"
// contract — callers render "unknown" on a miss.
func ParseTranslation(key string) (t Translation, ok bool) {
	if !strings.HasPrefix(key, "translation:") {
		return Translation{}, false
	}
	rest := strings.TrimPrefix(key, "translation:")

	// MangaRef may itself contain ':' (e.g. a Windows drive letter), so
	// split from the right: the last three fields never contain ':'.
	parts := strings.Split(rest, ":")
	if len(parts) < 4 {
		return Translation{}, false
	}
	n := len(parts)
	engineID := parts[n-1]
	language := parts[n-2]
	pageIndexStr := parts[n-3]
	mangaRef := strings.Join(parts[:n-3], ":")

	pageIndex, err := strconv.Atoi(pageIndexStr)
	if err != nil || pageIndex < 0 || mangaRef == "" {
		return Translation{}, false
	}

	return Translation{
		MangaRef:  mangaRef,
		PageIndex: pageIndex,
		Language:  language,
		EngineID:  engineID,
	}, true
}
