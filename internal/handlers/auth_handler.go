package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/token"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *services.AuthService
	accessTTL   time.Duration
	refreshTTL  time.Duration
	secure      bool
}

func NewAuthHandler(authService *services.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		accessTTL:   cfg.JWTAccessExpiry,
		refreshTTL:  cfg.JWTRefreshExpiry,
		secure:      cfg.IsProduction(),
	}
}

func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := c.BodyParser(&req); err != nil {
		return errInvalidBody
	}

	resp, err := h.authService.SignUp(c.UserContext(), &req, clientInfo(c))
	if err != nil {
		return err
	}

	h.setAuthCookies(c, resp)
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var req dto.SignInRequest
	if err := c.BodyParser(&req); err != nil {
		return errInvalidBody
	}

	resp, err := h.authService.Authenticate(c.UserContext(), &req, clientInfo(c))
	if err != nil {
		return err
	}

	h.setAuthCookies(c, resp)
	return c.JSON(resp)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	claims, raw, ok := middleware.RefreshClaims(c)
	if !ok {
		return apperr.Unauthorized("Invalid refresh token")
	}

	resp, err := h.authService.Refresh(c.UserContext(), claims, raw)
	if err != nil {
		return err
	}

	h.setAuthCookies(c, resp)
	return c.JSON(resp)
}

func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	claims, err := accessClaims(c)
	if err != nil {
		return err
	}
	if err := h.authService.SignOut(c.UserContext(), claims); err != nil {
		return err
	}

	h.clearAuthCookies(c)
	return c.JSON(dto.MessageResponse{Message: "Signed out successfully"})
}

func (h *AuthHandler) SignOutAll(c *fiber.Ctx) error {
	claims, err := accessClaims(c)
	if err != nil {
		return err
	}
	n, err := h.authService.SignOutAll(c.UserContext(), claims)
	if err != nil {
		return err
	}

	h.clearAuthCookies(c)
	return c.JSON(dto.SignOutAllResponse{Terminated: n})
}

func (h *AuthHandler) Sessions(c *fiber.Ctx) error {
	claims, err := accessClaims(c)
	if err != nil {
		return err
	}
	sessions, err := h.authService.ListSessions(c.UserContext(), claims)
	if err != nil {
		return err
	}
	return c.JSON(sessions)
}

func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	claims, err := accessClaims(c)
	if err != nil {
		return err
	}
	profile, err := h.authService.Profile(c.UserContext(), claims)
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

func (h *AuthHandler) setAuthCookies(c *fiber.Ctx, resp *dto.TokenResponse) {
	c.Cookie(h.cookie(middleware.AccessCookie, resp.AccessToken, h.accessTTL))
	c.Cookie(h.cookie(middleware.RefreshCookie, resp.RefreshToken, h.refreshTTL))
}

func (h *AuthHandler) clearAuthCookies(c *fiber.Ctx) {
	for _, name := range []string{middleware.AccessCookie, middleware.RefreshCookie} {
		cookie := h.cookie(name, "", 0)
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		c.Cookie(cookie)
	}
}

func (h *AuthHandler) cookie(name, value string, ttl time.Duration) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}

func clientInfo(c *fiber.Ctx) services.ClientInfo {
	return services.ClientInfo{
		UserAgent: c.Get(fiber.HeaderUserAgent),
		IP:        c.IP(),
	}
}

func accessClaims(c *fiber.Ctx) (*token.Claims, error) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	return claims, nil
}
