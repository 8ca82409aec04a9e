// Package ratelimit provides per-key token bucket rate limiting for the plant's
// protocol tools. External writes are limited per signal so one noisy client cannot
// drown every input at once.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrRateLimited is wrapped by CheckLimit when a request is rejected.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter implements a per-key token bucket rate limiter.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // max burst size, also the initial token count
	nowFunc func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// PerMinute creates a limiter allowing n requests per minute.
func PerMinute(n float64, burst int) *Limiter {
	return NewLimiter(n/60.0, burst)
}

// Allow reports whether a request for key may proceed and consumes a token if so.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.reserve(key)
	return ok
}

// Len returns the number of buckets the limiter is tracking.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// reserve takes a token for key. When none is available it returns how long until
// one will be.
func (l *Limiter) reserve(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b := l.refill(key, now)

	if b.tokens >= 1.0 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, time.Duration(math.MaxInt64)
	}
	wait := (1.0 - b.tokens) / l.rate
	return false, time.Duration(wait * float64(time.Second))
}

func (l *Limiter) refill(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = math.Min(float64(l.burst), b.tokens+l.rate*elapsed)
		b.lastCheck = now
	}
	return b
}

// Tool names guarded by ToolLimiters.
const (
	ToolSignals = "plant_signals"
	ToolRead    = "plant_read"
	ToolWrite   = "plant_write"
	ToolHistory = "plant_history"
)

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the per-tool limiters. plant_write is configurable; reads
// are generous since they never touch the engine goroutine.
func NewToolLimiters(writesPerMinute float64, writeBurst int) ToolLimiters {
	return ToolLimiters{
		ToolSignals: PerMinute(60, 10),
		ToolRead:    PerMinute(600, 50),
		ToolWrite:   PerMinute(writesPerMinute, writeBurst),
		ToolHistory: PerMinute(60, 10),
	}
}

// CheckLimit checks the rate limit for toolName, bucketed by key (for plant_write,
// the signal name). An empty key shares one bucket per tool. Tools without a
// configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName, key string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}

	bucketKey := toolName
	if key != "" {
		bucketKey = toolName + ":" + key
	}

	allowed, wait := limiter.reserve(bucketKey)
	if allowed {
		return nil
	}
	if wait == time.Duration(math.MaxInt64) {
		return fmt.Errorf("%w for %s", ErrRateLimited, bucketKey)
	}
	return fmt.Errorf("%w for %s, retry in %s", ErrRateLimited, bucketKey, wait.Round(time.Millisecond))
}
