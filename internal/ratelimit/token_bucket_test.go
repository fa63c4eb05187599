package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func TestTokenBucket_ConsumesAndRefills(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(clock, 2, 1)

	if !b.Allow() {
		t.Fatalf("first Allow=false, want true")
	}
	if !b.Allow() {
		t.Fatalf("second Allow=false, want true")
	}
	if b.Allow() {
		t.Fatalf("third Allow=true, want false (bucket empty)")
	}

	clock.Advance(1 * time.Second)
	if !b.Allow() {
		t.Fatalf("Allow after refill=false, want true")
	}
	if b.Allow() {
		t.Fatalf("Allow=true, want false (only one token refilled)")
	}
}

func TestTokenBucket_ClampsToCapacity(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(clock, 2, 1)

	clock.Advance(1 * time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		if b.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed=%d, want 2 (capacity clamp)", allowed)
	}
}

func TestTokenBucket_TimeGoingBackwards(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(clock, 1, 1)

	if !b.Allow() {
		t.Fatalf("first Allow=false, want true")
	}

	clock.Advance(-1 * time.Minute)
	if b.Allow() {
		t.Fatalf("Allow=true after clock went backwards, want false")
	}
}

func TestTokenBucket_DisabledAlwaysAllows(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(clock, 0, 0)

	for i := 0; i < 100; i++ {
		if !b.Allow() {
			t.Fatalf("disabled bucket rejected request %d", i)
		}
	}
}
