package router

import (
	"log"
	"sync"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
)

const (
	defaultRateLimitPerMinute = 30
	defaultRateLimitBurst     = 10
)

// connLimiter meters new connections per remote address: each address starts
// with a full burst of tokens and refills at the configured per-minute rate.
type connLimiter struct {
	refillPerSecond float64
	burst           float64
	clock           func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

func newConnLimiter(limitPerMinute, burst int, clock func() time.Time) *connLimiter {
	if limitPerMinute <= 0 {
		limitPerMinute = defaultRateLimitPerMinute
	}
	if burst <= 0 {
		burst = defaultRateLimitBurst
	}
	return &connLimiter{
		refillPerSecond: float64(limitPerMinute) / 60.0,
		burst:           float64(burst),
		clock:           clock,
		buckets:         map[string]*bucket{},
	}
}

func (l *connLimiter) allow(ip string) bool {
	now := l.clock().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{tokens: l.burst, lastSeen: now}
		l.buckets[ip] = b
	}
	if elapsed := now.Sub(b.lastSeen).Seconds(); elapsed > 0 {
		b.tokens = min(l.burst, b.tokens+elapsed*l.refillPerSecond)
		b.lastSeen = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimitMiddleware rejects connections from addresses that have exhausted
// their token budget, before the session handler ever runs.
func RateLimitMiddleware(limitPerMinute, burst int) wish.Middleware {
	limiter := newConnLimiter(limitPerMinute, burst, time.Now)
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			ip := remoteIP(s)
			if !limiter.allow(ip) {
				log.Printf("level=warn event=rate_limit_throttled remote_ip=%s", ip)
				_, _ = s.Write([]byte("rate limit exceeded\n"))
				return
			}
			next(s)
		}
	}
}
