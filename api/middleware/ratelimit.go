package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/use-agent/mediatap/config"
	"github.com/use-agent/mediatap/models"
)

// idleLimiterTTL is how long an unused identity keeps its bucket.
const idleLimiterTTL = time.Hour

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate.
//
// Buckets unused for 1 hour expire and are pruned every 5 minutes,
// preventing unbounded memory growth.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiters := gocache.New(idleLimiterTTL, 5*time.Minute)

	getLimiter := func(identity string) *rate.Limiter {
		if v, ok := limiters.Get(identity); ok {
			l := v.(*rate.Limiter)
			// Refresh the expiry on every use.
			limiters.SetDefault(identity, l)
			return l
		}
		l := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
		if err := limiters.Add(identity, l, gocache.DefaultExpiration); err != nil {
			// Lost a race with a concurrent first request.
			if v, ok := limiters.Get(identity); ok {
				return v.(*rate.Limiter)
			}
		}
		return l
	}

	return func(c *gin.Context) {
		// Callers are keyed by API key when auth ran, else by client IP.
		identity := c.GetString(ContextKeyAPIKey)
		if identity == "" {
			identity = c.ClientIP()
		}

		if !getLimiter(identity).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				models.Failure(models.ErrCodeRateLimited, "rate limit exceeded, please slow down"))
			return
		}

		c.Next()
	}
}
