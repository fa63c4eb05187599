package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestUserLimiter_PerUserBudget(t *testing.T) {
	clock := newFakeClock()
	l := NewUserLimiter(clock, 3, 10*time.Second, 0)

	for i := 0; i < 3; i++ {
		if !l.Allow("alice") {
			t.Fatalf("alice request %d rejected, want allowed", i)
		}
	}
	if l.Allow("alice") {
		t.Fatalf("alice over budget but still allowed")
	}

	// Another user has an independent budget.
	if !l.Allow("bob") {
		t.Fatalf("bob rejected, want allowed")
	}

	// Budget refills over the window.
	clock.Advance(10 * time.Second)
	if !l.Allow("alice") {
		t.Fatalf("alice rejected after window elapsed, want allowed")
	}
}

func TestUserLimiter_RetryAfter(t *testing.T) {
	l := NewUserLimiter(newFakeClock(), 50, 10*time.Second, 0)
	if got := l.RetryAfter(); got != 10 {
		t.Fatalf("RetryAfter=%d, want 10", got)
	}
}

func TestUserLimiter_DisabledAllowsEverything(t *testing.T) {
	l := NewUserLimiter(newFakeClock(), 0, 0, 0)
	if l.Enabled() {
		t.Fatalf("Enabled=true, want false")
	}
	if !l.Allow("anyone") {
		t.Fatalf("disabled limiter rejected request")
	}
	if got := l.RetryAfter(); got != 0 {
		t.Fatalf("RetryAfter=%d, want 0", got)
	}
}

func TestUserLimiter_BoundsTrackedUsers(t *testing.T) {
	clock := newFakeClock()
	l := NewUserLimiter(clock, 10, time.Second, 4)

	for i := 0; i < 20; i++ {
		l.Allow(fmt.Sprintf("user-%d", i))
	}
	if got := l.TrackedUsers(); got != 4 {
		t.Fatalf("TrackedUsers=%d, want 4", got)
	}

	// The oldest entries were evicted; an evicted user starts over with a
	// full bucket rather than carrying over spent tokens.
	if !l.Allow("user-0") {
		t.Fatalf("evicted user rejected, want fresh bucket")
	}
}
