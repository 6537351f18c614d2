// Package repository is the credential store: users, sessions and coupons
// behind small interfaces, with a GORM/Postgres implementation.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
	// ErrStale means a conditional update matched no row because the
	// record moved on since it was read.
	ErrStale = errors.New("record changed concurrently")
)

// Store groups the repositories that share one transaction scope.
type Store interface {
	Users() UserRepository
	Sessions() SessionRepository
	Coupons() CouponRepository
	// WithTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByWhatsapp(ctx context.Context, number string) (*models.User, error)
	// LockByID reads the user and holds a row lock until the transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetLicenseExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	// CountLicenses counts users whose license is active (expiry after now)
	// or expired (expiry at or before now).
	CountLicenses(ctx context.Context, now time.Time, active bool) (int64, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	// FindByID returns the session only while it is unexpired.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	FindValidByUserID(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	FindValidByDigest(ctx context.Context, digest string) (*models.Session, error)
	// SetRefreshDigest writes the first digest of a pending session.
	SetRefreshDigest(ctx context.Context, id uuid.UUID, digest string) error
	// Rotate replaces oldDigest with newDigest and extends expiry, only if
	// oldDigest is still current. Returns ErrStale otherwise.
	Rotate(ctx context.Context, id uuid.UUID, oldDigest, newDigest string, expiresAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
	CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}

type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	// LockByID locks the row, soft-deleted ones included, so callers can
	// tell a deleted coupon from a missing one.
	LockByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	LockByCode(ctx context.Context, code string) (*models.Coupon, error)
	// FindValid returns coupons that are neither redeemed nor revoked.
	FindValid(ctx context.Context) ([]models.Coupon, error)
	// FindSeconds returns the second codes linked to firstID.
	FindSeconds(ctx context.Context, firstID uuid.UUID) ([]models.Coupon, error)
	// MarkRedeemed flips an unredeemed, unrevoked coupon to redeemed.
	// Returns ErrStale when the coupon is already terminal.
	MarkRedeemed(ctx context.Context, id, userID uuid.UUID, at time.Time, expiresAt *time.Time) error
	// MarkRevoked flips an unredeemed, unrevoked coupon to revoked.
	MarkRevoked(ctx context.Context, id uuid.UUID, rev Revocation) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context, filter CouponFilter) (int64, error)
	ListAdmin(ctx context.Context, query AdminQuery) (*AdminPage, error)
	ExportAdmin(ctx context.Context, query AdminQuery) ([]AdminCoupon, error)
}

type Revocation struct {
	At         time.Time
	By         uuid.UUID
	Reason     string
	ReissuedTo *uuid.UUID
}

const (
	StatusAll       = "all"
	StatusValid     = "valid"
	StatusInvalid   = "invalid"
	StatusRedeemed  = "redeemed"
	StatusRevoked   = "revoked"
	StatusAvailable = "available"
)

// CouponFilter narrows coupon queries. Nil bounds are open.
type CouponFilter struct {
	Status       string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	RedeemedFrom *time.Time
	RedeemedTo   *time.Time
	ExpiresFrom  *time.Time
	ExpiresTo    *time.Time
}

type AdminQuery struct {
	CouponFilter
	Search string
	Page   int
	Limit  int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps page to >= 1 and limit to 1..100.
func (q AdminQuery) Normalize() AdminQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit < 1 {
		q.Limit = 1
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.Status == "" {
		q.Status = StatusAll
	}
	return q
}

func (q AdminQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type UserInfo struct {
	ID    uuid.UUID
	Name  string
	Email string
}

// AdminCoupon is a coupon joined with its issuer, redeemer and revoker.
type AdminCoupon struct {
	models.Coupon
	Issuer   *UserInfo
	Redeemer *UserInfo
	Revoker  *UserInfo
}

type AdminPage struct {
	Items      []AdminCoupon
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// TotalPages is ceil(total/limit), never less than 1.
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	pages := int((total + int64(limit) - 1) / int64(limit))
	if pages < 1 {
		return 1
	}
	return pages
}
