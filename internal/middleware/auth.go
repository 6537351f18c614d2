package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/token"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	userKey         = "user"
	refreshKey      = "refresh_claims"
	refreshTokenKey = "refresh_token"
)

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: message,
	})
}

// AccessProtected verifies the access token from the access_token cookie,
// falling back to the Authorization bearer header.
func AccessProtected(codec *token.Codec) fiber.Handler {
	return jwtware.New(jwtware.Config{
		KeyFunc:     codec.AccessKeyFunc(),
		Claims:      &token.Claims{},
		ContextKey:  userKey,
		TokenLookup: "cookie:" + AccessCookie + ",header:" + fiber.HeaderAuthorization,
		SuccessHandler: func(c *fiber.Ctx) error {
			claims, ok := CurrentClaims(c)
			if !ok || claims.UserID == "" || claims.SessionID == "" {
				return unauthorized(c, "Unauthorized: invalid or expired token")
			}
			return c.Next()
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return unauthorized(c, "Unauthorized: invalid or expired token")
		},
	})
}

// CurrentClaims returns the access claims stored by AccessProtected.
func CurrentClaims(c *fiber.Ctx) (*token.Claims, bool) {
	t, ok := c.Locals(userKey).(*jwt.Token)
	if !ok || t == nil {
		return nil, false
	}
	claims, ok := t.Claims.(*token.Claims)
	return claims, ok
}

// RefreshProtected verifies the refresh token from the refresh_token cookie
// or the bearer header and keeps the raw token for digest comparison.
func RefreshProtected(codec *token.Codec) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(RefreshCookie)
		if raw == "" {
			raw = bearer(c.Get(fiber.HeaderAuthorization))
		}
		if raw == "" {
			return unauthorized(c, "Refresh token missing")
		}
		claims, err := codec.VerifyRefreshToken(raw)
		if err != nil {
			return unauthorized(c, "Invalid refresh token")
		}
		c.Locals(refreshKey, claims)
		c.Locals(refreshTokenKey, raw)
		return c.Next()
	}
}

// RefreshClaims returns the verified refresh claims and the raw token.
func RefreshClaims(c *fiber.Ctx) (*token.Claims, string, bool) {
	claims, ok := c.Locals(refreshKey).(*token.Claims)
	if !ok {
		return nil, "", false
	}
	raw, _ := c.Locals(refreshTokenKey).(string)
	return claims, raw, raw != ""
}

func bearer(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
