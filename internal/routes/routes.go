package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/token"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
)

type Handlers struct {
	Auth    *handlers.AuthHandler
	License *handlers.LicenseHandler
	Health  *handlers.HealthHandler
}

func Setup(
	app *fiber.App,
	cfg *config.Config,
	codec *token.Codec,
	store repository.Store,
	cache *redis.Client,
	h Handlers,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", h.Health.Check)

	protected := middleware.AccessProtected(codec)

	auth := api.Group("/auth")
	auth.Post("/sign-up", h.Auth.SignUp)
	auth.Post("/sign-in", middleware.RateLimit(cache, "signin", cfg.SignInMaxPerMinute, middleware.EmailOrIP), h.Auth.SignIn)
	auth.Post("/refresh", middleware.RefreshProtected(codec), h.Auth.Refresh)
	auth.Post("/sign-out", protected, h.Auth.SignOut)
	auth.Post("/sign-out-all", protected, h.Auth.SignOutAll)
	auth.Get("/sessions", protected, h.Auth.Sessions)

	api.Get("/users/profile", protected, h.Auth.Profile)

	license := api.Group("/license")
	license.Get("/public-key", h.License.PublicKey)
	license.Post("/redeem-coupon", protected,
		middleware.RateLimit(cache, "redeem", cfg.RedeemMaxPerMinute, middleware.UserOrIP),
		h.License.RedeemCoupon)

	// Admin (protected + admin required)
	admin := middleware.AdminRequired(store, cfg)
	license.Post("/create-coupon", protected, admin, h.License.CreateCoupon)

	coupons := license.Group("/admin/coupons", protected, admin)
	coupons.Get("/", h.License.ListCoupons)
	coupons.Get("/redeemed", h.License.ListRedeemed)
	coupons.Get("/stats", h.License.Stats)
	coupons.Get("/export/csv", h.License.ExportCSV)
	coupons.Get("/stats/export/csv", h.License.ExportStatsCSV)
	coupons.Patch("/:couponId/revoke", h.License.Revoke)
	coupons.Post("/:couponId/reissue", h.License.Reissue)
	coupons.Delete("/:couponId", h.License.Delete)
}
