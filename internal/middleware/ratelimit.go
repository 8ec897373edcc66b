package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig configures token bucket limiting for the GraphQL endpoint.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	// PerClient keys buckets by client IP instead of sharing one bucket.
	PerClient bool
}

// idleBucketTTL is how long an untouched per-client bucket is kept.
const idleBucketTTL = 10 * time.Minute

// RateLimitMiddleware rejects requests over the configured rate with 429.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	limiter := newLimiter(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientKey(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				writeGraphQLError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type limiter struct {
	cfg RateLimitConfig

	mu        sync.Mutex
	global    *tokenBucket
	buckets   map[string]*tokenBucket
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	now := time.Now()
	return &limiter{
		cfg:       cfg,
		global:    newTokenBucket(cfg.RPS, cfg.Burst, now),
		buckets:   make(map[string]*tokenBucket),
		lastSweep: now,
	}
}

func (l *limiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.PerClient {
		return l.global.allow(now)
	}

	if now.Sub(l.lastSweep) > idleBucketTTL {
		for k, b := range l.buckets {
			if now.Sub(b.last) > idleBucketTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = newTokenBucket(l.cfg.RPS, l.cfg.Burst, now)
		l.buckets[key] = bucket
	}
	return bucket.allow(now)
}

// tokenBucket is not safe for concurrent use; limiter serializes access.
type tokenBucket struct {
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
}

func newTokenBucket(rps float64, burst int, now time.Time) *tokenBucket {
	if rps <= 0 || burst <= 0 {
		return &tokenBucket{last: now}
	}
	return &tokenBucket{
		rate:   rps,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   now,
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	if b.rate <= 0 || b.burst <= 0 {
		return true
	}

	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.burst, b.tokens+elapsed*b.rate)
		b.last = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
