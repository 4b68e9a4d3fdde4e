package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the IP-based rate limiter
type RateLimitConfig struct {
	RequestsPerSecond float64       // Requests allowed per second per IP
	Burst             int           // Maximum burst size
	CleanupInterval   time.Duration // How often to clean up stale limiters
}

// DefaultRateLimitConfig allows polling clients plus short bursts of writes
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 20,
	Burst:             40,
	CleanupInterval:   5 * time.Minute,
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// IPRateLimiter provides IP-based rate limiting for HTTP requests
type IPRateLimiter struct {
	limiters sync.Map // map[string]*ipLimiterEntry
	config   RateLimitConfig
	stopChan chan struct{}
	stopOnce sync.Once

	rejected atomic.Uint64
	allowed  atomic.Uint64
}

// RateLimitStats reports limiter decisions since start
type RateLimitStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
}

// NewIPRateLimiter creates a limiter and starts its cleanup goroutine
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		config:   cfg,
		stopChan: make(chan struct{}),
	}

	// Drops limiters of IPs that went quiet
	go rl.cleanupLoop()

	return rl
}

// Stop stops the cleanup goroutine
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}

func (rl *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	now := time.Now().UnixNano()

	if v, ok := rl.limiters.Load(ip); ok {
		e := v.(*ipLimiterEntry)
		e.lastSeen.Store(now)
		return e.limiter
	}

	entry := &ipLimiterEntry{
		limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
	}
	entry.lastSeen.Store(now)

	actual, _ := rl.limiters.LoadOrStore(ip, entry)
	return actual.(*ipLimiterEntry).limiter
}

func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.cleanup(time.Now().Add(-rl.config.CleanupInterval * 2))
		}
	}
}

// cleanup removes limiters not used since cutoff
func (rl *IPRateLimiter) cleanup(cutoff time.Time) {
	limit := cutoff.UnixNano()
	rl.limiters.Range(func(key, value interface{}) bool {
		if value.(*ipLimiterEntry).lastSeen.Load() < limit {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Allow checks if a request from the given IP should be allowed
func (rl *IPRateLimiter) Allow(ip string) bool {
	if rl.getLimiter(ip).Allow() {
		rl.allowed.Add(1)
		return true
	}
	rl.rejected.Add(1)
	return false
}

// Middleware rejects requests over the per-IP budget with 429
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetStats returns rate limiter statistics
func (rl *IPRateLimiter) GetStats() RateLimitStats {
	return RateLimitStats{
		Allowed:  rl.allowed.Load(),
		Rejected: rl.rejected.Load(),
	}
}

// GetClientIP extracts the client IP, preferring proxy headers
func GetClientIP(r *http.Request) string {
	// CAUTION: X-Forwarded-For can be spoofed if not behind a trusted proxy
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ConnLimiter limits concurrent WebSocket connections per IP
type ConnLimiter struct {
	mu       sync.Mutex
	counts   map[string]int
	maxPerIP int

	rejected atomic.Uint64
}

// NewConnLimiter creates a per-IP connection limiter
func NewConnLimiter(maxPerIP int) *ConnLimiter {
	return &ConnLimiter{counts: make(map[string]int), maxPerIP: maxPerIP}
}

// Acquire reserves a connection slot for ip
func (cl *ConnLimiter) Acquire(ip string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.counts[ip] >= cl.maxPerIP {
		cl.rejected.Add(1)
		return false
	}
	cl.counts[ip]++
	return true
}

// Release frees a slot taken by Acquire
func (cl *ConnLimiter) Release(ip string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if n := cl.counts[ip]; n <= 1 {
		delete(cl.counts, ip)
	} else {
		cl.counts[ip] = n - 1
	}
}

// Count returns current connections for an IP
func (cl *ConnLimiter) Count(ip string) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.counts[ip]
}

// Rejected returns how many connections were refused
func (cl *ConnLimiter) Rejected() uint64 {
	return cl.rejected.Load()
}

// AllowedOrigins lists exact origins accepted by the WebSocket upgrader in
// addition to any localhost origin.
var AllowedOrigins = []string{
	"http://127.0.0.1",
}

// IsAllowedOrigin checks the WebSocket Origin header. An empty origin is a
// non-browser client and is accepted.
func IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1:") {
		return true
	}
	for _, allowed := range AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}
