package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"watchparty/pkg/cache"
	"watchparty/pkg/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleLimiterTTL drops limiters of clients that went quiet.
const idleLimiterTTL = 10 * time.Minute

// LimiterStore hands out one token bucket per key. Buckets expire after they
// have not been used for idleLimiterTTL.
type LimiterStore struct {
	limiters *cache.Cache[*rate.Limiter]
	rate     rate.Limit
	burst    int
}

func NewLimiterStore(r rate.Limit, burst int) *LimiterStore {
	return &LimiterStore{
		limiters: cache.New[*rate.Limiter](idleLimiterTTL),
		rate:     r,
		burst:    burst,
	}
}

func (s *LimiterStore) Get(key string) *rate.Limiter {
	limiter, ok := s.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(s.rate, s.burst)
	}
	// refresh the idle deadline on every use
	s.limiters.Set(key, limiter)
	return limiter
}

func (s *LimiterStore) Allow(key string) bool {
	return s.Get(key).Allow()
}

func (s *LimiterStore) Stop() {
	s.limiters.Stop()
}

// ClientIP returns the first X-Forwarded-For hop, or the remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware applies per-client rate limiting, keyed by user
// when the identity middleware ran first and by IP otherwise.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	store := NewLimiterStore(rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond), cfg.RateLimiting.HTTP.Burst)

	var globalSem chan struct{}
	if cfg.RateLimiting.HTTP.MaxConcurrent > 0 {
		globalSem = make(chan struct{}, cfg.RateLimiting.HTTP.MaxConcurrent)
	}

	return func(c *gin.Context) {
		if globalSem != nil {
			select {
			case globalSem <- struct{}{}:
				defer func() { <-globalSem }()
			default:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error": "too many concurrent requests",
				})
				return
			}
		}

		key := "ip:" + ClientIP(c.Request)
		if userID, ok := UserIDFrom(c); ok {
			key = "user:" + string(userID)
		}

		if !store.Allow(key) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
