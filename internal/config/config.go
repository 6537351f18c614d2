package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Env         string `mapstructure:"APP_ENV"`
	Port        string `mapstructure:"PORT"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	SentryDSN   string `mapstructure:"SENTRY_DSN"`

	LogRetentionDays int `mapstructure:"LOG_RETENTION_DAYS"`

	// Database
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	// Redis is optional; rate limiting is skipped without it.
	RedisURL           string `mapstructure:"REDIS_URL"`
	SignInMaxPerMinute int    `mapstructure:"SIGNIN_MAX_PER_MINUTE"`
	RedeemMaxPerMinute int    `mapstructure:"REDEEM_MAX_PER_MINUTE"`

	// JWT
	JWTAccessSecret  string        `mapstructure:"JWT_ACCESS_SECRET"`
	JWTAccessExpiry  time.Duration `mapstructure:"JWT_ACCESS_EXPIRY"`
	JWTRefreshSecret string        `mapstructure:"JWT_REFRESH_SECRET"`
	JWTRefreshExpiry time.Duration `mapstructure:"JWT_REFRESH_EXPIRY"`
	BcryptCost       int           `mapstructure:"BCRYPT_COST"`

	// License signing key: inline PEM, base64 encoded PEM, or a file path.
	LicensePrivateKey string `mapstructure:"LICENSE_PRIVATE_KEY"`

	// Coupons
	CouponCodeBytes   int `mapstructure:"COUPON_CODE_BYTES"`
	CouponCodeRetries int `mapstructure:"COUPON_CODE_RETRIES"`

	SessionReapInterval time.Duration `mapstructure:"SESSION_REAP_INTERVAL"`
	DefaultPhoneRegion  string        `mapstructure:"DEFAULT_PHONE_REGION"`

	// Admin
	AdminEmails string `mapstructure:"ADMIN_EMAILS"`
}

// Load reads .env when present, then the environment. Env vars win.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SENTRY_DSN", "")
	v.SetDefault("LOG_RETENTION_DAYS", 30)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "license_db")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SIGNIN_MAX_PER_MINUTE", 10)
	v.SetDefault("REDEEM_MAX_PER_MINUTE", 10)

	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_ACCESS_EXPIRY", "15m")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_REFRESH_EXPIRY", "168h")
	v.SetDefault("BCRYPT_COST", 12)

	v.SetDefault("LICENSE_PRIVATE_KEY", "")
	v.SetDefault("COUPON_CODE_BYTES", 15)
	v.SetDefault("COUPON_CODE_RETRIES", 3)
	v.SetDefault("SESSION_REAP_INTERVAL", "1h")
	v.SetDefault("DEFAULT_PHONE_REGION", "EG")
	v.SetDefault("ADMIN_EMAILS", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.JWTAccessExpiry <= 0 {
		c.JWTAccessExpiry = 15 * time.Minute
	}
	if c.JWTRefreshExpiry <= 0 {
		c.JWTRefreshExpiry = 168 * time.Hour
	}
	if c.IsProduction() && c.DBPassword == "" {
		return errors.New("config: DB_PASSWORD must be set in production")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.CouponCodeBytes < 8 {
		return errors.New("config: COUPON_CODE_BYTES must be at least 8")
	}
	if c.CouponCodeRetries < 1 {
		c.CouponCodeRetries = 1
	}
	if c.SessionReapInterval <= 0 {
		c.SessionReapInterval = time.Hour
	}
	if c.LogRetentionDays <= 0 {
		c.LogRetentionDays = 30
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AdminEmailList returns the trimmed, lower-cased ADMIN_EMAILS entries.
func (c *Config) AdminEmailList() []string {
	if c.AdminEmails == "" {
		return nil
	}
	parts := strings.Split(c.AdminEmails, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(p))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}
