package middleware

import (
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS allows credentials (the auth cookies) only for an explicit origin
// list; fiber rejects credentials with a wildcard origin.
func CORS(cfg *config.Config) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Authorization, Accept, X-Request-ID",
		AllowMethods:     "GET, POST, PUT, DELETE, PATCH, OPTIONS",
		AllowCredentials: cfg.CORSOrigins != "" && cfg.CORSOrigins != "*",
		ExposeHeaders:    "Content-Disposition, X-Request-ID",
	})
}
