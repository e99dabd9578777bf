package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/castos/studio/pkg/response"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const bucketSweepInterval = time.Minute

// RateLimiter caps write operations per owner. With Redis the window is a
// shared fixed counter; without it each process keeps a token bucket per key.
type RateLimiter struct {
	redis *redis.Client

	mu        sync.Mutex
	buckets   map[string]*visitor
	lastSweep time.Time
}

// visitor is idle once a full window has passed since its last use; by then
// it has refilled completely, so dropping it changes nothing
type visitor struct {
	limiter  *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:     redisClient,
		buckets:   make(map[string]*visitor),
		lastSweep: time.Now(),
	}
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maxRequests <= 0 {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, GetOwner(c))
		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))

		if rl.redis == nil {
			if !rl.bucket(key, maxRequests, window).Allow() {
				c.Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())/maxRequests))
				return response.RateLimited(c)
			}
			return c.Next()
		}

		ctx := context.Background()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// If Redis fails, allow the request
			return c.Next()
		}

		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))
		return c.Next()
	}
}

func (rl *RateLimiter) bucket(key string, maxRequests int, window time.Duration) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) >= bucketSweepInterval {
		rl.sweepLocked(now)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &visitor{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(maxRequests)), maxRequests),
			window:  window,
		}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// sweepLocked drops idle buckets; rl.mu must be held
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > b.window {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

// SubmitLimit limits optimization submissions per hour
func (rl *RateLimiter) SubmitLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("submit", maxPerHour, time.Hour)
}

// ExportLimit limits report exports per hour
func (rl *RateLimiter) ExportLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("export", maxPerHour, time.Hour)
}
