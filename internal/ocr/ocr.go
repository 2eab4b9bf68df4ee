// Package ocr defines the OCR provider contract (C9) and a cache layer in
// front of it, keyed by (image fingerprint, options hash). Recognition is
// assumed deterministic for identical inputs, so the cache needs no
// invalidation beyond the fingerprint changing.
package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mangatl/mangatl/internal/store"
)

// TextRegion is one recognized span of text on a page.
type TextRegion struct {
	BBox       [4]float64 `json:"bbox"` // x0, y0, x1, y1
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	Direction  string     `json:"direction"` // "vertical" or "horizontal"
}

// Options controls a recognition call; it is hashed to form part of the
// cache key so different option sets don't collide.
type Options struct {
	Language string
	Model    string
}

func (o Options) hash() string {
	sum := sha256.Sum256([]byte(o.Language + "|" + o.Model))
	return fmt.Sprintf("%x", sum)
}

// Provider is the external OCR contract: recognize text regions in an
// image. Implementations may be slow (model inference); callers should
// treat this as a suspension point.
type Provider interface {
	Recognize(ctx context.Context, imageBytes []byte, opts Options) ([]TextRegion, error)
}

// CachedProvider wraps a Provider with a durable cache keyed by
// (fingerprint, options hash), so a page whose OCR already ran for one
// target language is not re-OCR'd for a second.
type CachedProvider struct {
	inner       Provider
	st          *store.Store
	fingerprint string
}

// NewCachedProvider wraps inner with cache lookups against st.
func NewCachedProvider(inner Provider, st *store.Store) *CachedProvider {
	return &CachedProvider{inner: inner, st: st}
}

// Recognize checks the durable cache first; on a miss it calls the
// underlying provider and stores the result for next time.
func (c *CachedProvider) Recognize(ctx context.Context, imageBytes []byte, fingerprint string, opts Options) ([]TextRegion, error) {
	optionsHash := opts.hash()

	if rec, err := c.st.GetOCRResult(fingerprint, optionsHash); err == nil {
		var regions []TextRegion
		if jsonErr := json.Unmarshal(rec.Regions, &regions); jsonErr == nil {
			return regions, nil
		}
	}

	regions, err := c.inner.Recognize(ctx, imageBytes, opts)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(regions); err == nil {
		_ = c.st.PutOCRResult(store.OCRCacheRecord{
			Fingerprint: fingerprint,
			OptionsHash: optionsHash,
			Regions:     encoded,
		})
	}
	return regions, nil
}

// isNumericOrPunctuation reports whether text contains no letters at all,
// used by the text-group builder's confidence/content filter.
func isNumericOrPunctuation(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	for _, r := range trimmed {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r >= 0x80 {
			// Any letter, or any non-ASCII rune (CJK, kana, etc.) counts as
			// textual content, not pure numeric/punctuation noise.
			return false
		}
	}
	return true
}

// IsNumericOrPunctuation is exported for internal/textgroup's filter stage.
func IsNumericOrPunctuation(text string) bool {
	return isNumericOrPunctuation(text)
}

// sortRegionsStable is a small helper retained for callers that need a
// deterministic default ordering of raw regions before grouping.
func sortRegionsStable(regions []TextRegion) {
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].BBox[1] < regions[j].BBox[1]
	})
}
