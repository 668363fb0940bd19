package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterStore keeps one token bucket per client IP. Buckets idle for
// longer than expiresIn are dropped on the next access.
type RateLimiterStore struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	expiresIn time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiterStore creates a store allowing r requests per second with burst
func NewRateLimiterStore(r float64, burst int, expiresIn time.Duration) *RateLimiterStore {
	return &RateLimiterStore{
		visitors:  make(map[string]*visitor),
		rate:      rate.Limit(r),
		burst:     burst,
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

// Allow reports whether identifier may proceed now
func (s *RateLimiterStore) Allow(identifier string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > s.expiresIn {
		for id, v := range s.visitors {
			if now.Sub(v.lastSeen) > s.expiresIn {
				delete(s.visitors, id)
			}
		}
		s.lastSweep = now
	}

	v, ok := s.visitors[identifier]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.visitors[identifier] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// RateLimit rejects clients exceeding the store's rate with 429
func RateLimit(store *RateLimiterStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !store.Allow(ip) {
			log.Warn().Str("ip", ip).Str("path", c.Request.URL.Path).Msg("Rate limit exceeded")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "Too many requests, please try again later",
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
