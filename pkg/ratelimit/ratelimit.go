// Package ratelimit implements a sliding-window request limiter: per
// (identifier, endpoint), prune timestamps older than now-window and
// allow the request iff the remaining count is under the configured
// limit.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Limit is one (requests, window) configuration.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimit is the global default: 120 requests / 60s per identifier.
func DefaultLimit() Limit {
	return Limit{Requests: 120, Window: 60 * time.Second}
}

// counter is one identifier+endpoint's sliding-window record of allowed
// request timestamps.
type counter struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// Limiter enforces a Limit independently per (identifier, endpoint) pair,
// each pair behind its own mutex so hot identifiers don't contend.
type Limiter struct {
	limit Limit
	now   func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

// New constructs a Limiter enforcing limit.
func New(limit Limit) *Limiter {
	return &Limiter{
		limit:    limit,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// Result is the outcome of an Allow call.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

func key(identifier, endpoint string) string {
	return identifier + "\x00" + endpoint
}

// Allow implements the per-request check: prune timestamps older than
// now-window; if the remaining count is under the limit, record now and
// allow; otherwise reject with a retry-after hint equal to
// (oldest_timestamp + window - now), ceilinged to the second.
func (l *Limiter) Allow(identifier, endpoint string) Result {
	k := key(identifier, endpoint)

	l.mu.Lock()
	c, ok := l.counters[k]
	if !ok {
		c = &counter{}
		l.counters[k] = c
	}
	l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.limit.Window)

	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := c.timestamps[:0]
	for _, ts := range c.timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	c.timestamps = pruned

	if len(c.timestamps) < l.limit.Requests {
		c.timestamps = append(c.timestamps, now)
		return Result{Allowed: true}
	}

	oldest := c.timestamps[0]
	retryAfter := oldest.Add(l.limit.Window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	seconds := math.Ceil(retryAfter.Seconds())
	return Result{Allowed: false, RetryAfter: time.Duration(seconds) * time.Second}
}
