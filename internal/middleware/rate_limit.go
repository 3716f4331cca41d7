package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const rateLimitPrefix = "rl:"

// KeyFunc extracts the rate limiting key from a request. An empty key is not limited.
type KeyFunc func(c *fiber.Ctx) string

// PrincipalKey limits by authenticated principal, falling back to client IP.
func PrincipalKey(c *fiber.Ctx) string {
	if uid, _ := c.Locals("user_id").(string); uid != "" {
		return uid
	}
	return c.IP()
}

// LoginKey limits by the login handle in the request body, falling back to client IP.
func LoginKey(c *fiber.Ctx) string {
	var req struct {
		Handle string `json:"handle"`
	}
	_ = c.BodyParser(&req)
	if h := strings.TrimSpace(req.Handle); h != "" {
		return h
	}
	return c.IP()
}

// RateLimit allows on average perSecond requests per key with bursts up to burst.
// With Redis the budget is shared across instances as burst requests per
// burst/perSecond window; without Redis a token bucket per key is kept in process.
// Redis errors fail open.
func RateLimit(cache *redis.Client, name string, perSecond float64, burst int, key KeyFunc) fiber.Handler {
	if perSecond <= 0 || burst <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if key == nil {
		key = PrincipalKey
	}
	window := time.Duration(float64(burst) / perSecond * float64(time.Second))
	local := newKeyLimiter(perSecond, burst, 10*time.Minute)

	return func(c *fiber.Ctx) error {
		k := strings.TrimSpace(key(c))
		if k == "" {
			return c.Next()
		}

		var allowed bool
		if cache != nil {
			var err error
			allowed, err = allowWindow(c.UserContext(), cache, rateLimitPrefix+name+":"+k, burst, window)
			if err != nil {
				return c.Next()
			}
		} else {
			allowed = local.Allow(k, time.Now())
		}

		if !allowed {
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(window.Seconds()+0.5)))
			return fiber.NewError(http.StatusTooManyRequests, "rate limit exceeded, try again later")
		}
		return c.Next()
	}
}

func allowWindow(ctx context.Context, cache *redis.Client, key string, limit int, window time.Duration) (bool, error) {
	cnt, err := cache.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		cache.Expire(ctx, key, window)
	}
	return cnt <= int64(limit), nil
}

// keyLimiter applies a token bucket per key and periodically evicts idle entries.
type keyLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*limiterEntry
	hits  uint64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyLimiter(perSecond float64, burst int, idleTTL time.Duration) *keyLimiter {
	return &keyLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: idleTTL,
		byKey:   make(map[string]*limiterEntry),
	}
}

func (l *keyLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}
