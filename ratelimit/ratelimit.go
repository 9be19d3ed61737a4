// Package ratelimit implements a token-bucket limiter for inbound Signal
// traffic, keyed by destination name.
package ratelimit

import (
	"errors"
	"time"

	"github.com/gostdlib/base/concurrency/sync"
)

// ErrRateLimited is returned when a destination's bucket has no tokens left.
var ErrRateLimited = errors.New("ratelimit: rate limited")

// Config configures a Limiter.
type Config struct {
	// Rate is the number of requests allowed per second, per key. Defaults
	// to 100 if <= 0.
	Rate float64

	// Burst is the maximum number of requests a key can make at once.
	// Defaults to 10 if <= 0.
	Burst int
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// Limiter rate-limits by an arbitrary string key (typically a destination
// name) using the token bucket algorithm. One Limiter tracks independent
// buckets per key.
type Limiter struct {
	rate  float64
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New returns a Limiter configured per cfg.
func New(cfg Config) *Limiter {
	if cfg.Rate <= 0 {
		cfg.Rate = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Limiter{
		rate:    cfg.Rate,
		burst:   cfg.Burst,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether a request for key may proceed, consuming one token
// from key's bucket if so.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastUpdate: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Cleanup removes buckets untouched for longer than maxAge, bounding memory
// growth from a steady stream of one-off keys.
func (l *Limiter) Cleanup(maxAge time.Duration) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for key, b := range l.buckets {
		if b.lastUpdate.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stats returns the number of keys with a tracked bucket.
func (l *Limiter) Stats() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
