package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientBucket tracks one caller's token bucket and its last use so idle
// entries can be pruned.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-client request ceiling over a sliding window.
// Clients are keyed by remote IP after RealIP resolution.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket

	limit  rate.Limit
	burst  int
	window time.Duration
}

// NewRateLimiter allows up to max requests per client within window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(float64(max) / window.Seconds()),
		burst:   max,
		window:  window,
	}
}

// Allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	bucket, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) > 10_000 {
			rl.pruneLocked(now)
		}
		bucket = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.Allow()
}

// pruneLocked drops buckets idle for longer than the window.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	for key, bucket := range rl.clients {
		if now.Sub(bucket.lastSeen) > rl.window {
			delete(rl.clients, key)
		}
	}
}

// Handler wraps next with the rate limit check. Rejected requests get the
// standard error envelope with a 429 status.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"error":{"code":"RATE_LIMIT_EXCEEDED","message":"too many requests"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the caller's IP from the request. RealIP middleware has
// already rewritten RemoteAddr when forwarding headers are present.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IsLoopback reports whether the request originates from the local machine.
func IsLoopback(r *http.Request) bool {
	ip := net.ParseIP(ClientIP(r))
	return ip != nil && ip.IsLoopback()
}
