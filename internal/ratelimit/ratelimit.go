// Package ratelimit provides a keyed token bucket limiter. shelfd keys it by
// client IP to throttle writes.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long an unused key keeps its bucket.
const DefaultIdleTTL = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter gives every key its own independent limiter. Keys that
// stay unused for the idle TTL are evicted.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a KeyedRateLimiter.
type Option func(*KeyedRateLimiter)

// WithIdleTTL sets how long an unused key is kept.
func WithIdleTTL(d time.Duration) Option {
	return func(k *KeyedRateLimiter) {
		if d > 0 {
			k.idleTTL = d
		}
	}
}

// New creates a limiter allowing rps requests per second per key, with
// bursts of up to burst.
func New(rps float64, burst int, opts ...Option) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  DefaultIdleTTL,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(krl)
	}

	go krl.cleanup()

	return krl
}

// Allow reports whether a request for key may proceed now. It never blocks.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	return krl.getLimiter(key).Allow()
}

// Wait blocks until a request for key is allowed or ctx ends.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return krl.getLimiter(key).Wait(ctx)
}

// Len returns the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.limiters)
}

func (krl *KeyedRateLimiter) getLimiter(key string) *rate.Limiter {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	e, ok := krl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.limiters[key] = e
	}
	e.lastSeen = krl.now()
	return e.limiter
}

// Stop shuts down the cleanup goroutine.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

// evict drops keys idle for longer than the TTL and returns how many.
func (krl *KeyedRateLimiter) evict() int {
	cutoff := krl.now().Add(-krl.idleTTL)

	krl.mu.Lock()
	defer krl.mu.Unlock()
	n := 0
	for key, e := range krl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(krl.limiters, key)
			n++
		}
	}
	return n
}

func (krl *KeyedRateLimiter) cleanup() {
	ticker := time.NewTicker(krl.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			krl.evict()
		case <-krl.done:
			return
		}
	}
}
