// Package ratelimit paces outbound calls to translation/OCR engines with a
// per-engine token bucket, so a burst of tasks for the same engine cannot
// exceed the rate that engine's API allows.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// ExceededError is returned when an engine's rate limit is exceeded.
type ExceededError struct {
	EngineID   string
	Rate       float64
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate_limited: engine %q has exceeded its rate limit of %.2f req/s", e.EngineID, e.Rate)
}

// bucket implements a token-bucket limiter for a single engine.
type bucket struct {
	mu         sync.Mutex
	rate       float64
	burst      int
	tokens     float64
	lastRefill time.Time
}

func newBucket(rate float64, burst int) *bucket {
	return &bucket{rate: rate, burst: burst, tokens: float64(burst), lastRefill: time.Now()}
}

func (b *bucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.rate
	if b.tokens > float64(b.burst) {
		b.tokens = float64(b.burst)
	}
	if b.tokens < 1.0 {
		return false
	}
	b.tokens -= 1.0
	return true
}

// Limits configures the rate (requests/sec) and burst size for a single engine.
type Limits struct {
	Rate  float64
	Burst int
}

// Limiter paces calls per engine_id. Engines without an explicit entry in
// the configured limits fall back to defaultRate/defaultBurst, with a bucket
// created lazily on first use.
type Limiter struct {
	mu           sync.RWMutex
	buckets      map[string]*bucket
	defaultRate  float64
	defaultBurst int
}

// New creates a Limiter with per-engine limits and a default fallback.
func New(defaultRate float64, defaultBurst int, engineLimits map[string]Limits) *Limiter {
	buckets := make(map[string]*bucket, len(engineLimits))
	for engineID, l := range engineLimits {
		buckets[engineID] = newBucket(l.Rate, l.Burst)
	}
	return &Limiter{buckets: buckets, defaultRate: defaultRate, defaultBurst: defaultBurst}
}

// Allow reports whether a call to engineID may proceed now, consuming a
// token if so. Returns an *ExceededError describing the retry delay when not.
func (l *Limiter) Allow(engineID string) error {
	b := l.bucketFor(engineID)
	if b.allow() {
		return nil
	}
	retryAfter := time.Duration(1.0/b.rate*1000) * time.Millisecond
	if retryAfter < 100*time.Millisecond {
		retryAfter = 100 * time.Millisecond
	}
	return &ExceededError{EngineID: engineID, Rate: b.rate, RetryAfter: retryAfter}
}

func (l *Limiter) bucketFor(engineID string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[engineID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[engineID]; ok {
		return b
	}
	b = newBucket(l.defaultRate, l.defaultBurst)
	l.buckets[engineID] = b
	return b
}

// Reconfigure replaces the default rate/burst and rebuilds all per-engine
// buckets, used when config is hot-reloaded.
func (l *Limiter) Reconfigure(defaultRate float64, defaultBurst int, engineLimits map[string]Limits) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.defaultRate = defaultRate
	l.defaultBurst = defaultBurst

	buckets := make(map[string]*bucket, len(engineLimits))
	for engineID, lim := range engineLimits {
		buckets[engineID] = newBucket(lim.Rate, lim.Burst)
	}
	l.buckets = buckets
}
