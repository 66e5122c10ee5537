package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"room-chat/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter counts requests in a sliding window per key
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	RateLimitKey(parts ...string) string
}

type RateLimitMiddleware struct {
	limiter RateLimiter
}

// NewRateLimitMiddleware wraps limiter. A nil limiter lets every request through.
func NewRateLimitMiddleware(limiter RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
	}
}

// RateLimitIP limits requests per client IP and path. A limit of zero
// disables it. When the limiter itself fails the request is let through so
// the chat keeps working without Redis.
func (rm *RateLimitMiddleware) RateLimitIP(requests int, window time.Duration) gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		if rm.limiter == nil || requests <= 0 {
			c.Next()
			return
		}

		// Use client IP for the rate limit key
		key := rm.limiter.RateLimitKey("ip", c.ClientIP(), c.Request.URL.Path)

		allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
		if err != nil {
			slog.Warn("Rate limit check failed, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.NewError(
				response.ErrCodeRateLimited,
				fmt.Sprintf("Too many requests. Limit: %d per %v", requests, window),
			))
			return
		}

		c.Next()
	})
}
