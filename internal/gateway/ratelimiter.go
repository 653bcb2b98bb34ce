package gateway

import (
	"sync"
	"time"
)

// IPRateLimiter implements sliding window rate limiting per client address
type IPRateLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	requests          map[string][]time.Time
	lastSweep         time.Time
}

// NewIPRateLimiter creates a rate limiter with the given per-minute limit
func NewIPRateLimiter(requestsPerMinute int) *IPRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &IPRateLimiter{
		requestsPerMinute: requestsPerMinute,
		requests:          make(map[string][]time.Time),
		lastSweep:         time.Now(),
	}
}

// Allow checks whether a request from addr is allowed and records it if so
func (r *IPRateLimiter) Allow(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)

	// Clean up old requests for this address
	valid := make([]time.Time, 0, len(r.requests[addr]))
	for _, reqTime := range r.requests[addr] {
		if reqTime.After(cutoff) {
			valid = append(valid, reqTime)
		}
	}

	if len(valid) >= r.requestsPerMinute {
		r.requests[addr] = valid
		return false
	}

	r.requests[addr] = append(valid, now)
	r.sweepLocked(now, cutoff)
	return true
}

// Count returns the number of requests recorded for addr in the current window
func (r *IPRateLimiter) Count(addr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-time.Minute)
	count := 0
	for _, reqTime := range r.requests[addr] {
		if reqTime.After(cutoff) {
			count++
		}
	}
	return count
}

// sweepLocked drops idle addresses so the map does not grow unbounded.
// Runs at most once per minute.
func (r *IPRateLimiter) sweepLocked(now time.Time, cutoff time.Time) {
	if now.Sub(r.lastSweep) < time.Minute {
		return
	}
	r.lastSweep = now

	for addr, times := range r.requests {
		active := false
		for _, reqTime := range times {
			if reqTime.After(cutoff) {
				active = true
				break
			}
		}
		if !active {
			delete(r.requests, addr)
		}
	}
}
