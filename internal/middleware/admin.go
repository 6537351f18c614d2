package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AdminRequired must run after AccessProtected. It admits:
// 1. emails listed in ADMIN_EMAILS
// 2. users whose stored role is ADMIN
func AdminRequired(store repository.Store, cfg *config.Config) fiber.Handler {
	adminEmails := cfg.AdminEmailList()

	return func(c *fiber.Ctx) error {
		claims, ok := CurrentClaims(c)
		if !ok {
			return unauthorized(c, "Unauthorized")
		}

		if contains(adminEmails, strings.ToLower(claims.Email)) {
			return c.Next()
		}

		if userID, err := uuid.Parse(claims.UserID); err == nil {
			user, err := store.Users().FindByID(c.UserContext(), userID)
			if err == nil && user.IsAdmin() {
				return c.Next()
			}
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				slog.Error("admin lookup failed", "user_id", userID, "error", err)
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Admin access required",
		})
	}
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
