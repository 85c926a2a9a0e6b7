// Package ratelimit implements a token-bucket pre-call throttle for
// the vision client. Wait is context-aware so a caller can be
// unblocked by cancellation instead of sleeping unconditionally.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a simple token-bucket limiter: up to maxTokens calls may
// proceed in a burst, and each call consumes a token for good (tokens
// are not returned when a call finishes); one token is refilled every
// refillRate.
type Limiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// New constructs a Limiter with maxTokens capacity and the given
// refill interval between tokens.
func New(maxTokens int, refillRate time.Duration) *Limiter {
	return &Limiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (l *Limiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill)
	add := int(elapsed / l.refillRate)
	if add > 0 {
		l.tokens += add
		if l.tokens > l.maxTokens {
			l.tokens = l.maxTokens
		}
		l.lastRefill = now
	}
}

// Wait blocks until a token is available or ctx is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refillLocked()
		if l.tokens > 0 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
