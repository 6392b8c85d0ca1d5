// Package ratelimit implements per-key token bucket rate limiting for HTTP
// handlers.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int           // requests per window
	Remaining  int           // requests left in current window
	ResetAt    time.Time     // when the bucket will be full again
	RetryAfter time.Duration // how long to wait before retrying (0 if allowed)
}

// Limiter keeps one token bucket per key. A nil *Limiter allows everything.
type Limiter struct {
	name  string
	mu    sync.Mutex
	bkts  map[string]*bucket
	rate  rate.Limit
	burst int
	stop  chan struct{}
	once  sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter returns a limiter allowing perMinute requests per minute per key,
// all of which may be spent at once. It returns nil when perMinute is 0.
func NewLimiter(name string, perMinute int) *Limiter {
	if perMinute <= 0 {
		return nil
	}
	window := time.Minute
	l := &Limiter{
		name:  name,
		bkts:  make(map[string]*bucket),
		rate:  rate.Limit(float64(perMinute) / window.Seconds()),
		burst: perMinute,
		stop:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Name returns the limiter name used in bucket keys.
func (l *Limiter) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Allow consumes one token for key if available.
func (l *Limiter) Allow(key string) Result {
	if l == nil {
		return Result{Allowed: true}
	}
	now := time.Now()
	l.mu.Lock()
	b, ok := l.bkts[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.bkts[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	allowed := r.OK() && r.DelayFrom(now) == 0
	if !allowed && r.OK() {
		r.CancelAt(now)
	}

	tokens := b.limiter.TokensAt(now)
	res := Result{
		Allowed:   allowed,
		Limit:     l.burst,
		Remaining: max(int(tokens), 0),
		ResetAt:   now.Add(time.Duration((float64(l.burst) - tokens) / float64(l.rate) * float64(time.Second))),
	}
	if !allowed {
		res.RetryAfter = max(time.Duration(float64(time.Second)/float64(l.rate)), time.Second)
	}
	return res
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now().Add(-10 * time.Minute))
		case <-l.stop:
			return
		}
	}
}

// cleanup drops idle buckets that have refilled.
func (l *Limiter) cleanup(staleBefore time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.bkts {
		if b.lastSeen.Before(staleBefore) && b.limiter.Tokens() >= float64(l.burst) {
			delete(l.bkts, key)
		}
	}
}

// Limiters groups the limiters used by the router.
type Limiters struct {
	// Auth applies to login and registration, keyed by client IP.
	Auth *Limiter
	// Write applies to authenticated mutations, keyed by user.
	Write *Limiter
}

// NewLimiters creates the router limiters. A zero rate disables a limiter.
func NewLimiters(authPerMin, writePerMin int) *Limiters {
	return &Limiters{
		Auth:  NewLimiter("auth", authPerMin),
		Write: NewLimiter("write", writePerMin),
	}
}

// Close stops all limiters.
func (l *Limiters) Close() {
	l.Auth.Close()
	l.Write.Close()
}
