package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"certpipe/pkg/metrics"
)

type RateLimitConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// registry tracks one token bucket per client IP and evicts buckets
// that have been idle longer than MaxAge.
type registry struct {
	mu      sync.Mutex
	clients map[string]*client
	cfg     RateLimitConfig
}

func newRegistry(cfg RateLimitConfig) *registry {
	r := &registry{
		clients: make(map[string]*client),
		cfg:     cfg,
	}
	go r.sweep()
	return r
}

func (r *registry) take(ip string) (allowed bool, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cl, ok := r.clients[ip]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(rate.Limit(r.cfg.RPS), r.cfg.Burst)}
		r.clients[ip] = cl
	}
	cl.lastSeen = time.Now()

	allowed = cl.limiter.Allow()
	remaining = cl.limiter.Burst() - int(cl.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

func (r *registry) sweep() {
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-r.cfg.MaxAge)
		r.mu.Lock()
		for ip, cl := range r.clients {
			if cl.lastSeen.Before(cutoff) {
				delete(r.clients, ip)
			}
		}
		r.mu.Unlock()
	}
}

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(cfg RateLimitConfig) gin.HandlerFunc {
	reg := newRegistry(cfg)
	limitHeader := strconv.Itoa(int(cfg.RPS))

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = c.RemoteIP()
		}

		allowed, remaining := reg.take(ip)
		c.Header("X-RateLimit-Limit", limitHeader)

		if !allowed {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
