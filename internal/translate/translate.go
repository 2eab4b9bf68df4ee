// Package translate implements the translation provider contract (C11):
// per-string cache probing, sub-batching with rate-limit pacing, the
// numbered-response protocol for parsing batched replies, and fallback to
// a secondary engine on a classified sensitive-content refusal.
package translate

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mangatl/mangatl/internal/store"
)

const (
	// DefaultBatchSize bounds how many strings are sent to the underlying
	// engine per RPC.
	DefaultBatchSize = 20
	// MinBatchSpacing is the minimum wall-clock gap enforced between
	// consecutive sub-batches sent to the same engine.
	MinBatchSpacing = 2 * time.Second
)

// ErrSensitiveContent is returned by an Engine when it refuses a batch on
// content-policy grounds; the caller retries the affected strings against
// the fallback engine instead of treating it as a generic failure.
var ErrSensitiveContent = fmt.Errorf("translate: sensitive content refusal")

// Engine is the underlying translation RPC: translate a numbered batch of
// strings into targetLang, returning the same count of results in order.
// Implementations decode their engine's reply themselves (ParseNumberedResponse
// handles the numbered-line form) and return ErrSensitiveContent for a
// classified content refusal.
type Engine interface {
	ID() string
	TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error)
}

// Provider wraps one or more Engines with caching, batching, and pacing,
// implementing the length-preserving translate_batch contract.
type Provider struct {
	primary  Engine
	fallback Engine
	st       *store.Store
	batchSize int

	lastBatchAt time.Time
}

// New creates a Provider. fallback may be nil.
func New(primary, fallback Engine, st *store.Store) *Provider {
	return &Provider{primary: primary, fallback: fallback, st: st, batchSize: DefaultBatchSize}
}

// TranslateBatch is length-preserving: every input string gets exactly one
// output string, never an error out of this call. Failures become the
// literal marker "[Translation Failed: <source>]".
func (p *Provider) TranslateBatch(ctx context.Context, texts []string, targetLang string) []string {
	results := make([]string, len(texts))
	uncachedIdx := make([]int, 0, len(texts))

	for i, text := range texts {
		if cached, ok := p.probeCache(text, targetLang, p.primary.ID()); ok {
			results[i] = cached
			continue
		}
		uncachedIdx = append(uncachedIdx, i)
	}

	for start := 0; start < len(uncachedIdx); start += p.batchSize {
		end := start + p.batchSize
		if end > len(uncachedIdx) {
			end = len(uncachedIdx)
		}
		chunkIdx := uncachedIdx[start:end]
		chunkTexts := make([]string, len(chunkIdx))
		for i, idx := range chunkIdx {
			chunkTexts[i] = texts[idx]
		}

		p.pace()
		translated := p.translateSubBatch(ctx, chunkTexts, targetLang)
		for i, idx := range chunkIdx {
			results[idx] = translated[i]
		}
	}

	return results
}

// pace enforces MinBatchSpacing between consecutive sub-batches.
func (p *Provider) pace() {
	if p.lastBatchAt.IsZero() {
		p.lastBatchAt = time.Now()
		return
	}
	elapsed := time.Since(p.lastBatchAt)
	if elapsed < MinBatchSpacing {
		time.Sleep(MinBatchSpacing - elapsed)
	}
	p.lastBatchAt = time.Now()
}

func (p *Provider) translateSubBatch(ctx context.Context, texts []string, targetLang string) []string {
	out, err := p.callEngine(ctx, p.primary, texts, targetLang)
	if err == nil {
		p.cacheResults(texts, out, targetLang, p.primary.ID())
		return out
	}

	if err == ErrSensitiveContent && p.fallback != nil {
		log.Warn().Str("engine", p.primary.ID()).Msg("translate: sensitive content refusal, retrying via fallback engine")
		out, fbErr := p.callEngine(ctx, p.fallback, texts, targetLang)
		if fbErr == nil {
			p.cacheResults(texts, out, targetLang, p.fallback.ID())
			return out
		}
		err = fbErr
	}

	log.Error().Err(err).Int("count", len(texts)).Msg("translate: sub-batch failed, falling back to per-string calls")
	return p.perStringFallback(ctx, texts, targetLang)
}

// callEngine sends one sub-batch and verifies the numbered-response
// protocol's count invariant; a mismatch is treated as a whole-batch
// failure so the caller falls back to per-string calls.
func (p *Provider) callEngine(ctx context.Context, engine Engine, texts []string, targetLang string) ([]string, error) {
	out, err := engine.TranslateBatch(ctx, texts, targetLang)
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("translate: count mismatch: sent %d, got %d", len(texts), len(out))
	}
	return out, nil
}

func (p *Provider) perStringFallback(ctx context.Context, texts []string, targetLang string) []string {
	out := make([]string, len(texts))
	for i, text := range texts {
		single, err := p.callEngine(ctx, p.primary, []string{text}, targetLang)
		if err != nil || len(single) != 1 {
			out[i] = fmt.Sprintf("[Translation Failed: %s]", text)
			continue
		}
		out[i] = single[0]
		p.cacheResults([]string{text}, single, targetLang, p.primary.ID())
	}
	return out
}

func (p *Provider) probeCache(text, targetLang, engineID string) (string, bool) {
	if p.st == nil {
		return "", false
	}
	cached, err := p.st.GetTranslatedString(sourceHash(text), targetLang, engineID)
	if err != nil {
		return "", false
	}
	return cached, true
}

func (p *Provider) cacheResults(sources, translated []string, targetLang, engineID string) {
	if p.st == nil {
		return
	}
	for i, src := range sources {
		if strings.HasPrefix(translated[i], "[Translation Failed:") {
			continue
		}
		if err := p.st.PutTranslatedString(sourceHash(src), targetLang, engineID, translated[i]); err != nil {
			log.Warn().Err(err).Msg("translate: cache write failed")
		}
	}
}

func sourceHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum)
}

// ParseNumberedResponse extracts results from a raw model response where
// each line is prefixed "N. " with the 1-based input index, verifying the
// count equals wantCount. It is exported for engine adapters whose replies
// use numbered lines; the HTTP engines in internal/engines receive a JSON
// array instead and do not call it.
func ParseNumberedResponse(raw string, wantCount int) ([]string, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	out := make([]string, wantCount)
	found := 0

	for _, line := range lines {
		line = strings.TrimSpace(line)
		dot := strings.Index(line, ".")
		if dot <= 0 {
			continue
		}
		n, err := strconv.Atoi(line[:dot])
		if err != nil || n < 1 || n > wantCount {
			continue
		}
		out[n-1] = strings.TrimSpace(line[dot+1:])
		found++
	}

	if found != wantCount {
		return nil, fmt.Errorf("translate: numbered response parse: expected %d entries, found %d", wantCount, found)
	}
	return out, nil
}
