// Package middleware provides Gin middleware for the acquisition server:
// request IDs, security headers, and Redis-backed rate limiting.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// defaultWindow is the fixed window length when none is configured.
const defaultWindow = time.Minute

// RateLimiter provides distributed rate limiting using Redis.
// Requests are counted per client in fixed windows, so every instance
// sharing the Redis backend enforces the same budget.
type RateLimiter struct {
	client redis.UniversalClient
	logger *zap.Logger
	config *RateLimitConfig
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active
	Enabled bool

	// RequestsPerWindow caps how many requests a single client may send
	// within one window
	RequestsPerWindow int

	// Window is the fixed window length. Zero means one minute.
	Window time.Duration

	// RedisClient is the Redis client for distributed limiting
	RedisClient redis.UniversalClient
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config *RateLimitConfig, logger *zap.Logger) (*RateLimiter, error) {
	if config == nil {
		return nil, fmt.Errorf("rate limit config cannot be nil")
	}
	if config.RedisClient == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if config.Window <= 0 {
		config.Window = defaultWindow
	}

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := config.RedisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RateLimiter{
		client: config.RedisClient,
		logger: logger,
		config: config,
	}, nil
}

// Middleware returns a Gin middleware function for rate limiting.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Enabled || rl.config.RequestsPerWindow <= 0 {
			c.Next()
			return
		}

		if !rl.checkLimit(c.Request.Context(), c, "ratelimit:"+clientKey(c)) {
			return
		}

		c.Next()
	}
}

// checkLimit counts the request against the client's current window.
// Returns true if allowed, false if rate limit exceeded.
func (rl *RateLimiter) checkLimit(ctx context.Context, c *gin.Context, key string) bool {
	windowSeconds := int64(rl.config.Window / time.Second)

	// Lua script for atomic increment and expiry of the window counter
	script := `
		local count = redis.call('INCR', KEYS[1])
		if count == 1 then
			redis.call('EXPIRE', KEYS[1], ARGV[1])
		end
		local ttl = redis.call('TTL', KEYS[1])
		return {count, ttl}
	`

	result, err := rl.client.Eval(ctx, script, []string{key}, windowSeconds).Result()
	if err != nil {
		rl.logger.Error("rate limit check failed",
			zap.String("key", key),
			zap.Error(err),
		)
		// Fail open: allow request if Redis fails
		return true
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 2 {
		rl.logger.Error("invalid rate limit result format")
		return true
	}

	count, _ := resultSlice[0].(int64)
	ttl, _ := resultSlice[1].(int64)
	if ttl < 0 {
		ttl = windowSeconds
	}

	limit := int64(rl.config.RequestsPerWindow)
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	// Set rate limit headers
	c.Header("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Unix()+ttl, 10))

	if count > limit {
		c.Header("Retry-After", strconv.FormatInt(ttl, 10))

		rl.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("client_ip", c.ClientIP()),
		)

		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"retry_after": ttl,
		})
		c.Abort()
		return false
	}

	return true
}

// clientKey identifies the calling client for rate limiting.
// SDKs send their installation id on every request, which survives NAT and
// shared egress IPs; requests without one fall back to the client IP.
func clientKey(c *gin.Context) string {
	if id := c.Query("clientUniqueId"); id != "" {
		return id
	}
	if id := c.Query("client_unique_id"); id != "" {
		return id
	}
	return c.ClientIP()
}
