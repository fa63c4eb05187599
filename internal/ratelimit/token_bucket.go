package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a token bucket that refills continuously at a fixed rate
// using a provided Clock.
//
// A zero or negative capacity or rate disables the bucket: Allow always
// succeeds.
type TokenBucket struct {
	mu sync.Mutex

	clock Clock

	capacity float64
	rate     float64 // tokens per second

	tokens float64
	last   time.Time
}

func NewTokenBucket(clock Clock, capacity, ratePerSecond float64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	return &TokenBucket{
		clock:    clock,
		capacity: capacity,
		rate:     ratePerSecond,
		tokens:   capacity,
		last:     clock.Now(),
	}
}

// Allow consumes one token if available.
func (b *TokenBucket) Allow() bool {
	if b.capacity <= 0 || b.rate <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if now.After(b.last) {
		b.tokens += now.Sub(b.last).Seconds() * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
