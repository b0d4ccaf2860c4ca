package netwrk

import "time"

// rateLimiter caps messages per one-second window. A limit of 0 allows all.
type rateLimiter struct {
	limit       int
	count       int
	windowStart time.Time
}

func newRateLimiter(perSecond int) *rateLimiter {
	return &rateLimiter{limit: perSecond}
}

func (l *rateLimiter) Allow(now time.Time) bool {
	if l.limit <= 0 {
		return true
	}
	if now.Sub(l.windowStart) >= time.Second {
		l.count = 0
		l.windowStart = now
	}
	l.count++
	return l.count <= l.limit
}
