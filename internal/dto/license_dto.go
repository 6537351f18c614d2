package dto

import (
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

const (
	DefaultCouponDuration = 30
	MaxCouponDuration     = 100
	MaxReasonLength       = 300
)

type CreateCouponRequest struct {
	Duration *int `json:"duration"`
}

func (r CreateCouponRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Duration, validation.By(durationInRange)),
	)
}

// Days returns the requested duration or the default.
func (r CreateCouponRequest) Days() int {
	if r.Duration == nil {
		return DefaultCouponDuration
	}
	return *r.Duration
}

func durationInRange(value interface{}) error {
	d, _ := value.(*int)
	if d == nil {
		return nil
	}
	if *d < 1 || *d > MaxCouponDuration {
		return errors.New("must be between 1 and 100")
	}
	return nil
}

type RedeemCouponRequest struct {
	Code string `json:"code"`
}

func (r RedeemCouponRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Length(1, 128)),
	)
}

// ReasonRequest is the body of revoke and reissue.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

func (r ReasonRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.RuneLength(0, MaxReasonLength)),
	)
}

// ListCouponsQuery is the admin listing query string.
type ListCouponsQuery struct {
	Page         int    `query:"page"`
	Limit        int    `query:"limit"`
	Status       string `query:"status"`
	Search       string `query:"search"`
	CreatedFrom  string `query:"createdFrom"`
	CreatedTo    string `query:"createdTo"`
	RedeemedFrom string `query:"redeemedFrom"`
	RedeemedTo   string `query:"redeemedTo"`
	ExpiresFrom  string `query:"expiresFrom"`
	ExpiresTo    string `query:"expiresTo"`
}

func (q ListCouponsQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Status, validation.In(
			repository.StatusAll,
			repository.StatusValid,
			repository.StatusInvalid,
			repository.StatusRedeemed,
			repository.StatusRevoked,
			repository.StatusAvailable,
		)),
		validation.Field(&q.Search, validation.RuneLength(0, 200)),
	)
}

// AdminQuery parses the date bounds. Range ordering is checked by the service.
func (q ListCouponsQuery) AdminQuery() (repository.AdminQuery, error) {
	out := repository.AdminQuery{
		CouponFilter: repository.CouponFilter{Status: q.Status},
		Search:       q.Search,
		Page:         q.Page,
		Limit:        q.Limit,
	}
	bounds := []struct {
		field string
		value string
		upper bool
		dst   **time.Time
	}{
		{"createdFrom", q.CreatedFrom, false, &out.CreatedFrom},
		{"createdTo", q.CreatedTo, true, &out.CreatedTo},
		{"redeemedFrom", q.RedeemedFrom, false, &out.RedeemedFrom},
		{"redeemedTo", q.RedeemedTo, true, &out.RedeemedTo},
		{"expiresFrom", q.ExpiresFrom, false, &out.ExpiresFrom},
		{"expiresTo", q.ExpiresTo, true, &out.ExpiresTo},
	}
	for _, b := range bounds {
		t, err := parseBound(b.field, b.value, b.upper)
		if err != nil {
			return repository.AdminQuery{}, err
		}
		*b.dst = t
	}
	return out, nil
}

type CouponResponse struct {
	models.Coupon
	Status string `json:"status"`
}

func NewCouponResponse(c *models.Coupon) CouponResponse {
	return CouponResponse{Coupon: *c, Status: c.Status()}
}

type UserSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

func newUserSummary(u *repository.UserInfo) *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

type AdminCouponResponse struct {
	CouponResponse
	IssuedByUser   *UserSummary `json:"issuedByUser,omitempty"`
	RedeemedByUser *UserSummary `json:"redeemedByUser,omitempty"`
	RevokedByUser  *UserSummary `json:"revokedByUser,omitempty"`
}

// CouponPageResponse is one page of the admin listing. Page and limit are
// the clamped values actually applied.
type CouponPageResponse struct {
	Items      []AdminCouponResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	Limit      int                   `json:"limit"`
	TotalPages int                   `json:"totalPages"`
}

func NewCouponPageResponse(page *repository.AdminPage) CouponPageResponse {
	items := make([]AdminCouponResponse, 0, len(page.Items))
	for i := range page.Items {
		item := &page.Items[i]
		items = append(items, AdminCouponResponse{
			CouponResponse: NewCouponResponse(&item.Coupon),
			IssuedByUser:   newUserSummary(item.Issuer),
			RedeemedByUser: newUserSummary(item.Redeemer),
			RevokedByUser:  newUserSummary(item.Revoker),
		})
	}
	return CouponPageResponse{
		Items:      items,
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
	}
}

type CouponPairResponse struct {
	FirstCoupon  CouponResponse `json:"firstCoupon"`
	SecondCoupon CouponResponse `json:"secondCoupon"`
}

type ReissueResponse struct {
	OldCoupon CouponResponse `json:"oldCoupon"`
	NewCoupon CouponResponse `json:"newCoupon"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// RedeemResponse carries either the first-code acknowledgement or the
// signed license of a second code.
type RedeemResponse struct {
	Message   string     `json:"message,omitempty"`
	License   string     `json:"license,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type StatsResponse struct {
	Total           int64 `json:"total"`
	Valid           int64 `json:"valid"`
	Invalid         int64 `json:"invalid"`
	Redeemed        int64 `json:"redeemed"`
	Revoked         int64 `json:"revoked"`
	Available       int64 `json:"available"`
	ActiveLicenses  int64 `json:"activeLicenses"`
	ExpiredLicenses int64 `json:"expiredLicenses"`
}
