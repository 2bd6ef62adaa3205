package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"marketchat/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter is implemented by services.RedisService.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimitMiddleware struct {
	limiter RateLimiter
}

// NewRateLimitMiddleware accepts a nil limiter, in which case every request
// passes.
func NewRateLimitMiddleware(limiter RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
	}
}

// RateLimit limits authenticated users per endpoint.
func (rm *RateLimitMiddleware) RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return rm.limit(requests, window, func(c *gin.Context) string {
		return fmt.Sprintf("rate_limit:%s:%s", UserID(c), c.FullPath())
	})
}

// RateLimitIP limits public routes by client address.
func (rm *RateLimitMiddleware) RateLimitIP(requests int, window time.Duration) gin.HandlerFunc {
	return rm.limit(requests, window, func(c *gin.Context) string {
		return fmt.Sprintf("rate_limit_ip:%s:%s", c.ClientIP(), c.FullPath())
	})
}

func (rm *RateLimitMiddleware) limit(requests int, window time.Duration, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rm.limiter == nil {
			c.Next()
			return
		}

		allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key(c), requests, window)
		if err != nil {
			// Fail open while Redis is unavailable.
			slog.Warn("Rate limit check failed", "path", c.FullPath(), "error", err)
			c.Next()
			return
		}

		if !allowed {
			response.Error(c, http.StatusTooManyRequests,
				fmt.Sprintf("Too many requests. Limit: %d per %v", requests, window))
			c.Abort()
			return
		}

		c.Next()
	}
}
