// Package ratelimit keeps one token bucket per key.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out per-key token buckets sharing one rate and burst.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// New creates a limiter refilling perSecond tokens with the given burst.
// perSecond <= 0 disables limiting.
func New(perSecond float64, burst int) *Limiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{buckets: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

// PerMinute builds a limiter from a requests-per-minute budget with a 10% burst.
func PerMinute(n int) *Limiter {
	burst := n / 10
	return New(float64(n)/60, burst)
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Allow consumes one token for key without blocking.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Wait blocks until key has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.bucket(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter %s: %w", key, err)
	}
	return nil
}
