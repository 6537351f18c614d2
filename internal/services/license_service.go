package services

import (
	"context"
	"crypto"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/token"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	FirstCodeAccepted    = "First code accepted"
	DefaultReissueReason = "Reissued"
	defaultCodeRetries   = 3
	licenseDay           = 24 * time.Hour
)

var (
	ErrCouponNotFound     = apperr.NotFound("Coupon not found")
	ErrCouponRedeemed     = apperr.BadRequest("Coupon already redeemed")
	ErrCouponRevoked      = apperr.BadRequest("Coupon has been revoked")
	ErrCouponDeleted      = apperr.BadRequest("Coupon has been deleted")
	ErrFirstCodeRequired  = apperr.BadRequest("First code must be redeemed first")
	ErrFirstCodeOtherUser = apperr.BadRequest("First code was redeemed by another user")
	ErrInvalidCouponID    = apperr.BadRequest("Invalid coupon id")
	ErrSigningKeyMissing  = errors.New("license signing key is not configured")
)

type LicenseService struct {
	store       repository.Store
	codec       *token.Codec
	signer      crypto.Signer
	codeBytes   int
	codeRetries int
	now         func() time.Time
}

// NewLicenseService wires the coupon ledger. signer may be nil, in which
// case second-code redemption fails without touching state.
func NewLicenseService(store repository.Store, codec *token.Codec, signer crypto.Signer, cfg *config.Config) *LicenseService {
	retries := cfg.CouponCodeRetries
	if retries < 1 {
		retries = defaultCodeRetries
	}
	return &LicenseService{
		store:       store,
		codec:       codec,
		signer:      signer,
		codeBytes:   cfg.CouponCodeBytes,
		codeRetries: retries,
		now:         time.Now,
	}
}

// CreateCoupon issues a first code and the second code that depends on it.
// Both rows are written in one transaction.
func (s *LicenseService) CreateCoupon(ctx context.Context, req *dto.CreateCouponRequest, issuer uuid.UUID) (*dto.CouponPairResponse, error) {
	if err := dto.Invalid(req.Validate()); err != nil {
		return nil, err
	}

	var first, second *models.Coupon
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		first = &models.Coupon{IssuedBy: issuer, IsFirstCode: true}
		if err := s.insertWithCode(ctx, tx, first); err != nil {
			return err
		}
		second = &models.Coupon{IssuedBy: issuer, Duration: req.Days(), FirstCouponID: &first.ID}
		return s.insertWithCode(ctx, tx, second)
	})
	if err != nil {
		return nil, internal(err, "failed to create coupon")
	}
	slog.Info("coupon pair created", "coupon_id", second.ID, "first_coupon_id", first.ID, "duration", second.Duration)

	return &dto.CouponPairResponse{
		FirstCoupon:  dto.NewCouponResponse(first),
		SecondCoupon: dto.NewCouponResponse(second),
	}, nil
}

// insertWithCode draws a fresh code on every unique-key collision, up to
// codeRetries attempts.
func (s *LicenseService) insertWithCode(ctx context.Context, tx repository.Store, coupon *models.Coupon) error {
	for attempt := 1; ; attempt++ {
		code, err := token.GenerateCode(s.codeBytes)
		if err != nil {
			return err
		}
		coupon.Code = code
		err = tx.Coupons().Create(ctx, coupon)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt >= s.codeRetries {
			return err
		}
		slog.Warn("coupon code collision, retrying", "attempt", attempt)
	}
}

type redemption struct {
	coupon    *models.Coupon
	expiresAt *time.Time
}

// RedeemCoupon applies code for userID. A first code is only recorded. A
// second code requires its first code to have been redeemed by the same
// user and extends the license window, stacking on any time still left.
// Every check and write happens in one transaction with the coupon and
// user rows locked.
func (s *LicenseService) RedeemCoupon(ctx context.Context, req *dto.RedeemCouponRequest, userID uuid.UUID) (*dto.RedeemResponse, error) {
	if err := dto.Invalid(req.Validate()); err != nil {
		return nil, err
	}
	if s.signer == nil {
		return nil, apperr.Internal(ErrSigningKeyMissing, "license signing unavailable")
	}
	code := strings.TrimSpace(req.Code)

	var out redemption
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		coupon, err := tx.Coupons().LockByCode(ctx, code)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCouponNotFound
		}
		if err != nil {
			return err
		}
		if coupon.IsRedeemed {
			return ErrCouponRedeemed
		}
		if coupon.IsRevoked {
			return ErrCouponRevoked
		}

		now := s.now()
		if coupon.IsFirstCode {
			out.coupon = coupon
			return markRedeemed(ctx, tx, coupon.ID, userID, now, nil)
		}

		if coupon.FirstCouponID != nil {
			first, err := tx.Coupons().FindByID(ctx, *coupon.FirstCouponID)
			if errors.Is(err, repository.ErrNotFound) {
				return ErrFirstCodeRequired
			}
			if err != nil {
				return err
			}
			if !first.IsRedeemed || first.RedeemedBy == nil {
				return ErrFirstCodeRequired
			}
			if *first.RedeemedBy != userID {
				return ErrFirstCodeOtherUser
			}
		}

		user, err := tx.Users().LockByID(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		expiresAt := ExtendLicense(user.LicenseExpiresAt, now, coupon.Duration)
		if err := markRedeemed(ctx, tx, coupon.ID, userID, now, &expiresAt); err != nil {
			return err
		}
		if err := tx.Users().SetLicenseExpiry(ctx, userID, expiresAt); err != nil {
			return err
		}
		out = redemption{coupon: coupon, expiresAt: &expiresAt}
		return nil
	})
	if err != nil {
		return nil, internal(err, "failed to redeem coupon")
	}

	if out.expiresAt == nil {
		slog.Info("first code redeemed", "user_id", userID, "coupon_id", out.coupon.ID)
		return &dto.RedeemResponse{Message: FirstCodeAccepted}, nil
	}

	license, err := s.codec.IssueLicenseToken(userID.String(), *out.expiresAt, s.signer)
	if err != nil {
		return nil, apperr.Internal(err, "failed to sign license")
	}
	slog.Info("coupon redeemed", "user_id", userID, "coupon_id", out.coupon.ID, "expires_at", out.expiresAt)
	return &dto.RedeemResponse{License: license, ExpiresAt: out.expiresAt}, nil
}

func markRedeemed(ctx context.Context, tx repository.Store, id, userID uuid.UUID, at time.Time, expiresAt *time.Time) error {
	err := tx.Coupons().MarkRedeemed(ctx, id, userID, at, expiresAt)
	if errors.Is(err, repository.ErrStale) {
		return ErrCouponRedeemed
	}
	return err
}

// ExtendLicense adds days to the current expiry when it is still in the
// future, otherwise to now.
func ExtendLicense(current *time.Time, now time.Time, days int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(time.Duration(days) * licenseDay)
}

// RevokeCoupon marks an unredeemed coupon revoked.
func (s *LicenseService) RevokeCoupon(ctx context.Context, couponID string, req *dto.ReasonRequest, admin uuid.UUID) (*dto.CouponResponse, error) {
	id, err := parseCouponID(couponID)
	if err != nil {
		return nil, err
	}
	if err := dto.Invalid(req.Validate()); err != nil {
		return nil, err
	}

	var revoked *models.Coupon
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		coupon, err := lockMutable(ctx, tx, id)
		if err != nil {
			return err
		}
		if coupon.IsRedeemed {
			return apperr.BadRequest("Cannot revoke a redeemed coupon")
		}
		if coupon.IsRevoked {
			return apperr.BadRequest("Coupon already revoked")
		}
		rev := repository.Revocation{At: s.now(), By: admin, Reason: strings.TrimSpace(req.Reason)}
		if err := tx.Coupons().MarkRevoked(ctx, id, rev); err != nil {
			if errors.Is(err, repository.ErrStale) {
				return apperr.BadRequest("Coupon already revoked")
			}
			return err
		}
		revoked, err = tx.Coupons().FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, internal(err, "failed to revoke coupon")
	}
	slog.Info("coupon revoked", "coupon_id", id, "user_id", admin)

	resp := dto.NewCouponResponse(revoked)
	return &resp, nil
}

// ReissueCoupon replaces an open second code with a new one carrying the same
// duration and first-code link. The old coupon is revoked and points at its
// replacement.
func (s *LicenseService) ReissueCoupon(ctx context.Context, couponID string, req *dto.ReasonRequest, admin uuid.UUID) (*dto.ReissueResponse, error) {
	id, err := parseCouponID(couponID)
	if err != nil {
		return nil, err
	}
	if err := dto.Invalid(req.Validate()); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultReissueReason
	}

	var old, replacement *models.Coupon
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		coupon, err := lockMutable(ctx, tx, id)
		if err != nil {
			return err
		}
		switch {
		case coupon.IsFirstCode:
			return apperr.BadRequest("First coupons cannot be reissued")
		case coupon.IsRedeemed:
			return apperr.BadRequest("Cannot reissue a redeemed coupon")
		case coupon.IsRevoked:
			return apperr.BadRequest("Cannot reissue a revoked coupon")
		}

		replacement = &models.Coupon{
			IssuedBy:             admin,
			Duration:             coupon.Duration,
			FirstCouponID:        coupon.FirstCouponID,
			ReissuedFromCouponID: &coupon.ID,
		}
		if err := s.insertWithCode(ctx, tx, replacement); err != nil {
			return err
		}
		rev := repository.Revocation{At: s.now(), By: admin, Reason: reason, ReissuedTo: &replacement.ID}
		if err := tx.Coupons().MarkRevoked(ctx, id, rev); err != nil {
			if errors.Is(err, repository.ErrStale) {
				return apperr.BadRequest("Cannot reissue a revoked coupon")
			}
			return err
		}
		old, err = tx.Coupons().FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, internal(err, "failed to reissue coupon")
	}
	slog.Info("coupon reissued", "coupon_id", id, "new_coupon_id", replacement.ID, "user_id", admin)

	return &dto.ReissueResponse{
		OldCoupon: dto.NewCouponResponse(old),
		NewCoupon: dto.NewCouponResponse(replacement),
	}, nil
}

// DeleteCoupon soft-deletes an unused coupon. Deleting a first code also
// deletes its unredeemed second codes, which could never be redeemed again.
func (s *LicenseService) DeleteCoupon(ctx context.Context, couponID string) (*dto.DeleteResponse, error) {
	id, err := parseCouponID(couponID)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		coupon, err := lockMutable(ctx, tx, id)
		if err != nil {
			return err
		}
		switch {
		case coupon.IsRedeemed:
			return apperr.BadRequest("Cannot delete a redeemed coupon")
		case coupon.ReissuedToCouponID != nil:
			return apperr.BadRequest("Cannot delete a reissued coupon")
		case coupon.IsRevoked:
			return apperr.BadRequest("Cannot delete a revoked coupon")
		}

		if coupon.IsFirstCode {
			seconds, err := tx.Coupons().FindSeconds(ctx, coupon.ID)
			if err != nil {
				return err
			}
			for _, second := range seconds {
				if second.IsRedeemed {
					continue
				}
				if err := tx.Coupons().Delete(ctx, second.ID); err != nil {
					return err
				}
			}
		}
		return tx.Coupons().Delete(ctx, id)
	})
	if err != nil {
		return nil, internal(err, "failed to delete coupon")
	}
	slog.Info("coupon deleted", "coupon_id", id)
	return &dto.DeleteResponse{Deleted: true}, nil
}

// lockMutable locks a coupon for an admin mutation. Soft-deleted coupons are
// terminal.
func lockMutable(ctx context.Context, tx repository.Store, id uuid.UUID) (*models.Coupon, error) {
	coupon, err := tx.Coupons().LockByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	if coupon.DeletedAt.Valid {
		return nil, ErrCouponDeleted
	}
	return coupon, nil
}

func (s *LicenseService) ListCoupons(ctx context.Context, query repository.AdminQuery) (*dto.CouponPageResponse, error) {
	if err := checkRanges(query.CouponFilter); err != nil {
		return nil, err
	}
	page, err := s.store.Coupons().ListAdmin(ctx, query)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list coupons")
	}
	resp := dto.NewCouponPageResponse(page)
	return &resp, nil
}

func (s *LicenseService) ListRedeemedCoupons(ctx context.Context, query repository.AdminQuery) (*dto.CouponPageResponse, error) {
	query.Status = repository.StatusRedeemed
	return s.ListCoupons(ctx, query)
}

// Stats runs each count as its own query, concurrently.
func (s *LicenseService) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	var out dto.StatsResponse
	now := s.now()
	g, gctx := errgroup.WithContext(ctx)

	couponCounts := map[string]*int64{
		repository.StatusAll:       &out.Total,
		repository.StatusValid:     &out.Valid,
		repository.StatusInvalid:   &out.Invalid,
		repository.StatusRedeemed:  &out.Redeemed,
		repository.StatusRevoked:   &out.Revoked,
		repository.StatusAvailable: &out.Available,
	}
	for status, dst := range couponCounts {
		g.Go(func() error {
			n, err := s.store.Coupons().Count(gctx, repository.CouponFilter{Status: status})
			*dst = n
			return err
		})
	}
	licenseCounts := map[bool]*int64{true: &out.ActiveLicenses, false: &out.ExpiredLicenses}
	for active, dst := range licenseCounts {
		g.Go(func() error {
			n, err := s.store.Users().CountLicenses(gctx, now, active)
			*dst = n
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, apperr.Internal(err, "failed to compute coupon statistics")
	}
	return &out, nil
}

// PublicKeyPEM returns the key relying parties use to verify licenses.
func (s *LicenseService) PublicKeyPEM() ([]byte, error) {
	if s.signer == nil {
		return nil, apperr.NotFound("License signing key is not configured")
	}
	pem, err := token.PublicKeyPEM(s.signer)
	if err != nil {
		return nil, apperr.Internal(err, "failed to encode public key")
	}
	return pem, nil
}

func parseCouponID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidCouponID
	}
	return id, nil
}

func checkRanges(f repository.CouponFilter) error {
	pairs := []struct {
		name     string
		from, to *time.Time
	}{
		{"created", f.CreatedFrom, f.CreatedTo},
		{"redeemed", f.RedeemedFrom, f.RedeemedTo},
		{"expires", f.ExpiresFrom, f.ExpiresTo},
	}
	for _, p := range pairs {
		if p.from != nil && p.to != nil && p.from.After(*p.to) {
			return apperr.BadRequest("Invalid " + p.name + " date range")
		}
	}
	return nil
}

// internal passes typed errors through and wraps everything else.
func internal(err error, message string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Internal(err, message)
}
