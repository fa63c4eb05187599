package ratelimit

import "time"

// Clock abstracts time so rate limiting and idle sweeping can be tested
// deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
