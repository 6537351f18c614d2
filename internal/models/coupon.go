package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	CouponStatusValid    = "valid"
	CouponStatusRedeemed = "redeemed"
	CouponStatusRevoked  = "revoked"
)

// Coupon is one code of a first/second pair. A first code has Duration 0 and
// only proves possession; the second code grants Duration days of license.
type Coupon struct {
	ID                   uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code                 string         `gorm:"size:128;not null;uniqueIndex" json:"code"`
	IssuedBy             uuid.UUID      `gorm:"type:uuid;not null;index" json:"issuedBy"`
	Duration             int            `gorm:"not null;default:0" json:"duration"`
	IsFirstCode          bool           `gorm:"not null;default:false" json:"isFirstCode"`
	FirstCouponID        *uuid.UUID     `gorm:"type:uuid;index" json:"firstCouponId,omitempty"`
	IsRedeemed           bool           `gorm:"not null;default:false;index" json:"isRedeemed"`
	RedeemedBy           *uuid.UUID     `gorm:"type:uuid;index" json:"redeemedBy,omitempty"`
	RedeemedAt           *time.Time     `json:"redeemedAt,omitempty"`
	ExpiresAt            *time.Time     `json:"expiresAt,omitempty"`
	IsRevoked            bool           `gorm:"not null;default:false;index" json:"isRevoked"`
	RevokedAt            *time.Time     `json:"revokedAt,omitempty"`
	RevokedBy            *uuid.UUID     `gorm:"type:uuid" json:"revokedBy,omitempty"`
	RevokeReason         string         `gorm:"size:300" json:"revokeReason,omitempty"`
	ReissuedFromCouponID *uuid.UUID     `gorm:"type:uuid" json:"reissuedFromCouponId,omitempty"`
	ReissuedToCouponID   *uuid.UUID     `gorm:"type:uuid" json:"reissuedToCouponId,omitempty"`
	CreatedAt            time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
}

// Status collapses the terminal flags into the label used by listings and exports.
func (c *Coupon) Status() string {
	switch {
	case c.IsRedeemed:
		return CouponStatusRedeemed
	case c.IsRevoked:
		return CouponStatusRevoked
	default:
		return CouponStatusValid
	}
}

// Terminal reports whether the coupon was redeemed, revoked or replaced.
func (c *Coupon) Terminal() bool {
	return c.IsRedeemed || c.IsRevoked || c.ReissuedToCouponID != nil
}
