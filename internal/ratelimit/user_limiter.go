package ratelimit

import (
	"container/list"
	"math"
	"sync"
	"time"
)

const defaultMaxTrackedUsers = 10000

// UserLimiter enforces a per-user request budget for the chat API: at most
// `requests` requests per `window`, enforced as a token bucket per user id.
//
// Buckets are bounded by an LRU cap so a spray of one-shot user ids cannot
// grow limiter state without bound; evicted users simply start with a full
// bucket on their next request.
type UserLimiter struct {
	clock    Clock
	requests int
	window   time.Duration
	maxUsers int

	mu    sync.Mutex
	users map[string]*userEntry
	lru   *list.List // front = most recently seen; values are user ids
}

type userEntry struct {
	bucket *TokenBucket
	elem   *list.Element
}

func NewUserLimiter(clock Clock, requests int, window time.Duration, maxUsers int) *UserLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	if maxUsers <= 0 {
		maxUsers = defaultMaxTrackedUsers
	}
	return &UserLimiter{
		clock:    clock,
		requests: requests,
		window:   window,
		maxUsers: maxUsers,
		users:    make(map[string]*userEntry),
		lru:      list.New(),
	}
}

// Enabled reports whether the limiter enforces anything at all.
func (l *UserLimiter) Enabled() bool {
	return l != nil && l.requests > 0 && l.window > 0
}

// RetryAfter returns the whole number of seconds a rejected caller should
// wait before retrying.
func (l *UserLimiter) RetryAfter() int {
	if !l.Enabled() {
		return 0
	}
	return int(math.Ceil(l.window.Seconds()))
}

// Allow reports whether a request from the given user is within budget.
func (l *UserLimiter) Allow(userID string) bool {
	if !l.Enabled() {
		return true
	}
	return l.bucketFor(userID).Allow()
}

func (l *UserLimiter) bucketFor(userID string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.users[userID]; ok {
		l.lru.MoveToFront(entry.elem)
		return entry.bucket
	}

	if len(l.users) >= l.maxUsers {
		// Evict the least recently seen user (oldest at the back).
		if elem := l.lru.Back(); elem != nil {
			evictID := elem.Value.(string)
			l.lru.Remove(elem)
			delete(l.users, evictID)
		}
	}

	bucket := NewTokenBucket(l.clock, float64(l.requests), float64(l.requests)/l.window.Seconds())
	l.users[userID] = &userEntry{
		bucket: bucket,
		elem:   l.lru.PushFront(userID),
	}
	return bucket
}

// TrackedUsers returns how many user buckets are currently retained.
func (l *UserLimiter) TrackedUsers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
