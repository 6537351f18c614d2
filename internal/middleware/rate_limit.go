package middleware

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateWindow = time.Minute

// KeyFunc picks the identity a request is counted against.
type KeyFunc func(c *fiber.Ctx) string

// RateLimit counts requests per key in fixed one-minute windows in Redis.
// It is a no-op without Redis and fails open on Redis errors.
func RateLimit(cache *redis.Client, name string, maxPerMin int, key KeyFunc) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		id := key(c)
		if id == "" {
			id = c.IP()
		}
		k := "rl:" + name + ":" + id

		ctx := c.UserContext()
		var incr *redis.IntCmd
		// EXPIRE NX arms only keys without a TTL; the window runs from the first hit.
		_, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, k)
			pipe.ExpireNX(ctx, k, rateWindow)
			return nil
		})
		if err != nil {
			slog.Warn("rate limit check skipped", "limiter", name, "error", err)
			return c.Next()
		}
		cnt := incr.Val()
		if cnt > int64(maxPerMin) {
			ttl, err := cache.TTL(ctx, k).Result()
			if err != nil || ttl <= 0 {
				ttl = rateWindow
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Error: true, Message: "Too many requests, try again later",
			})
		}
		return c.Next()
	}
}

// EmailOrIP keys sign-in attempts by the submitted email.
func EmailOrIP(c *fiber.Ctx) string {
	var req struct {
		Email string `json:"email"`
	}
	_ = c.BodyParser(&req)
	if email := dto.NormalizeEmail(req.Email); email != "" {
		return email
	}
	return c.IP()
}

// UserOrIP keys requests by the authenticated user. Run after AccessProtected.
func UserOrIP(c *fiber.Ctx) string {
	if claims, ok := CurrentClaims(c); ok && strings.TrimSpace(claims.UserID) != "" {
		return claims.UserID
	}
	return c.IP()
}
