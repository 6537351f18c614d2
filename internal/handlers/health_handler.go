package handlers

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	ping  func(ctx context.Context) error
	cache *redis.Client
}

// NewHealthHandler takes the database ping and an optional Redis client.
func NewHealthHandler(ping func(ctx context.Context) error, cache *redis.Client) *HealthHandler {
	return &HealthHandler{ping: ping, cache: cache}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	resp := dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        "ok",
	}
	if err := h.ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.DB = "unhealthy: " + err.Error()
	}
	if h.cache != nil {
		resp.Redis = "ok"
		if err := h.cache.Ping(ctx).Err(); err != nil {
			resp.Redis = "unhealthy: " + err.Error()
		}
	}

	status := fiber.StatusOK
	if resp.Status != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}
