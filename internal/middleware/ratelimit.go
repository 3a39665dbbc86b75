package middleware

import (
	"net/http"
	"sync"

	"convexpanel-go/internal/apierr"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter applies a per-client token bucket. Clients are keyed by IP;
// the daemon only ever serves loopback so this effectively guards against a
// runaway panel poll loop rather than abuse.
func RateLimiter(rps int, burst int) gin.HandlerFunc {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	limiters := &sync.Map{}

	return func(c *gin.Context) {
		key := c.ClientIP()

		limiterI, _ := limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(rps), burst))
		limiter := limiterI.(*rate.Limiter)

		if !limiter.Allow() {
			apiErr := apierr.New(http.StatusTooManyRequests,
				"rate_limited", "rate_limit_error", "Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apiErr.Envelope())
			return
		}

		c.Next()
	}
}
