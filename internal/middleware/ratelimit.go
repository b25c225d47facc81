// Package middleware holds the HTTP middleware of the storefront API.
package middleware

import (
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client rate limiting. A zero
// RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	TrustedProxies    []netip.Prefix
	EntryTTL          time.Duration
	Logger            logrus.FieldLogger
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	trusted     []netip.Prefix
	clients     map[string]*clientEntry
	ttl         time.Duration
	lastCleanup time.Time
	now         func() time.Time
	log         logrus.FieldLogger
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.WithField("component", "ratelimit")
	}
	return &RateLimiter{
		limit:       rate.Limit(cfg.RequestsPerSecond),
		burst:       cfg.Burst,
		trusted:     cfg.TrustedProxies,
		clients:     make(map[string]*clientEntry),
		ttl:         cfg.EntryTTL,
		lastCleanup: time.Now(),
		now:         time.Now,
		log:         cfg.Logger,
	}
}

// Allow reports whether client may make a request now. Stale clients are
// swept on the way.
func (rl *RateLimiter) Allow(client string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastCleanup) >= rl.ttl {
		for k, e := range rl.clients {
			if now.Sub(e.lastSeen) > rl.ttl {
				delete(rl.clients, k)
			}
		}
		rl.lastCleanup = now
	}

	e, ok := rl.clients[client]
	if !ok {
		e = &clientEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, rl.trusted)
			if !rl.Allow(ip) {
				rl.log.WithFields(logrus.Fields{"ip": ip, "path": r.URL.Path}).Warn("Rate limit exceeded")
				retry := max(1, int(math.Ceil(1/float64(rl.limit))))
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
