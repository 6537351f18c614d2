package handlers

import (
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type LicenseHandler struct {
	licenseService *services.LicenseService
}

func NewLicenseHandler(licenseService *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{licenseService: licenseService}
}

func (h *LicenseHandler) PublicKey(c *fiber.Ctx) error {
	pem, err := h.licenseService.PublicKeyPEM()
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/x-pem-file")
	return c.Send(pem)
}

func (h *LicenseHandler) RedeemCoupon(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req dto.RedeemCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return errInvalidBody
	}

	resp, err := h.licenseService.RedeemCoupon(c.UserContext(), &req, userID)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *LicenseHandler) CreateCoupon(c *fiber.Ctx) error {
	issuer, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req dto.CreateCouponRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.licenseService.CreateCoupon(c.UserContext(), &req, issuer)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *LicenseHandler) ListCoupons(c *fiber.Ctx) error {
	query, err := adminQuery(c)
	if err != nil {
		return err
	}
	resp, err := h.licenseService.ListCoupons(c.UserContext(), query)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *LicenseHandler) ListRedeemed(c *fiber.Ctx) error {
	query, err := adminQuery(c)
	if err != nil {
		return err
	}
	resp, err := h.licenseService.ListRedeemedCoupons(c.UserContext(), query)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *LicenseHandler) Stats(c *fiber.Ctx) error {
	resp, err := h.licenseService.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *LicenseHandler) ExportCSV(c *fiber.Ctx) error {
	query, err := adminQuery(c)
	if err != nil {
		return err
	}
	data, err := h.licenseService.ExportCouponsCSV(c.UserContext(), query)
	if err != nil {
		return err
	}
	return sendCSV(c, "coupons", data)
}

func (h *LicenseHandler) ExportStatsCSV(c *fiber.Ctx) error {
	data, err := h.licenseService.ExportStatsCSV(c.UserContext())
	if err != nil {
		return err
	}
	return sendCSV(c, "coupon-stats", data)
}

func (h *LicenseHandler) Revoke(c *fiber.Ctx) error {
	admin, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req dto.ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.licenseService.RevokeCoupon(c.UserContext(), c.Params("couponId"), &req, admin)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *LicenseHandler) Reissue(c *fiber.Ctx) error {
	admin, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req dto.ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.licenseService.ReissueCoupon(c.UserContext(), c.Params("couponId"), &req, admin)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *LicenseHandler) Delete(c *fiber.Ctx) error {
	resp, err := h.licenseService.DeleteCoupon(c.UserContext(), c.Params("couponId"))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func adminQuery(c *fiber.Ctx) (repository.AdminQuery, error) {
	var q dto.ListCouponsQuery
	if err := c.QueryParser(&q); err != nil {
		return repository.AdminQuery{}, apperr.BadRequest("Invalid query parameters")
	}
	if err := dto.Invalid(q.Validate()); err != nil {
		return repository.AdminQuery{}, err
	}
	return q.AdminQuery()
}

func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	claims, err := accessClaims(c)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, apperr.Unauthorized("Unauthorized")
	}
	return id, nil
}

func sendCSV(c *fiber.Ctx, name string, data []byte) error {
	filename := fmt.Sprintf("%s-%s.csv", name, time.Now().UTC().Format("2006-01-02"))
	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(data)
}
