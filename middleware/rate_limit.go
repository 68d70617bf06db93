package middleware

import (
	"context"
	"fmt"
	"time"

	"alarmsync/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Redis     *redis.Client
	Requests  int           // Number of requests allowed
	Window    time.Duration // Time window
	KeyPrefix string        // Redis key prefix
	SkipPaths []string      // Paths to skip rate limiting
}

// RateLimiter counts requests per device (falling back to client IP) in a
// fixed redis window. On a redis failure it lets the request through: the API
// degrading open is preferable to every client getting 429s.
type RateLimiter struct {
	config RateLimitConfig
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rate_limit"
	}
	if config.Requests == 0 {
		config.Requests = 100
	}
	if config.Window == 0 {
		config.Window = time.Minute
	}

	return &RateLimiter{config: config}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		if rl.shouldSkipPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := rl.key(c)

		allowed, err := rl.allow(c.Request.Context(), key)
		if err != nil {
			logrus.Warnf("Rate limiter unavailable, allowing request: %v", err)
			c.Next()
			return
		}

		if !allowed {
			utils.RateLimitResponse(c)
			c.Abort()
			return
		}

		c.Next()
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string) (bool, error) {
	count, err := rl.config.Redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := rl.config.Redis.Expire(ctx, key, rl.config.Window).Err(); err != nil {
			logrus.Warnf("Failed to set rate limit window on %s: %v", key, err)
		}
	}

	return count <= int64(rl.config.Requests), nil
}

func (rl *RateLimiter) key(c *gin.Context) string {
	window := time.Now().Unix() / int64(rl.config.Window.Seconds())

	if deviceID := c.GetString("deviceID"); deviceID != "" {
		return fmt.Sprintf("%s:device:%s:%d", rl.config.KeyPrefix, deviceID, window)
	}
	return fmt.Sprintf("%s:ip:%s:%d", rl.config.KeyPrefix, c.ClientIP(), window)
}

func (rl *RateLimiter) shouldSkipPath(path string) bool {
	for _, skip := range rl.config.SkipPaths {
		if path == skip {
			return true
		}
	}
	return false
}
