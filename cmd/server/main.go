package main

import (
	"context"
	"crypto"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/redis/go-redis/v9"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/cache"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/routes"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/security"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/token"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info")
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Structured logging (JSON to stdout)
	stdout := logging.Setup(cfg.LogLevel)

	// Database
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(db)
	slog.SetDefault(slog.New(logging.NewMultiHandler(stdout, pgLogHandler)))

	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cfg.LogRetentionDays, cleanupDone)

	// Redis is optional: without it the per-account limiters are skipped.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			slog.Warn("redis unavailable, rate limiting disabled", "error", err)
			redisClient = nil
		}
	}

	var signer crypto.Signer
	if cfg.LicensePrivateKey != "" {
		signer, err = token.ParsePrivateKey(cfg.LicensePrivateKey)
		if err != nil {
			slog.Error("invalid license signing key", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("LICENSE_PRIVATE_KEY not set, second-code redemption is disabled")
	}

	// Services
	store := repository.NewGormStore(db)
	codec := token.NewCodec(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	authService := services.NewAuthService(store, codec, security.NewHasher(cfg.BcryptCost), cfg)
	licenseService := services.NewLicenseService(store, codec, signer, cfg)

	reaperDone := make(chan struct{})
	services.StartSessionReaper(store, cfg.SessionReapInterval, reaperDone)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Env,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "no-referrer")
		return c.Next()
	})

	routes.Setup(app, cfg, codec, store, redisClient, routes.Handlers{
		Auth:    handlers.NewAuthHandler(authService, cfg),
		License: handlers.NewLicenseHandler(licenseService),
		Health:  handlers.NewHealthHandler(database.Pinger(db), redisClient),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(reaperDone)
	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if redisClient != nil {
		_ = redisClient.Close()
	}
	database.Close(db)

	slog.Info("server stopped")
}
