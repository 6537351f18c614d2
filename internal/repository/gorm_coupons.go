package repository

import (
	"context"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormCoupons struct {
	db *gorm.DB
}

// Live, non-terminal coupon: the precondition of every state change.
const openCoupon = "is_redeemed = false AND is_revoked = false AND reissued_to_coupon_id IS NULL"

func (r *gormCoupons) Create(ctx context.Context, coupon *models.Coupon) error {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(coupon).Error
	}))
}

func (r *gormCoupons) first(q *gorm.DB) (*models.Coupon, error) {
	var c models.Coupon
	if err := q.First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *gormCoupons) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *gormCoupons) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return r.first(r.db.WithContext(ctx).Where("code = ?", code))
}

func (r *gormCoupons) LockByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	return r.first(r.db.WithContext(ctx).Unscoped().Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *gormCoupons) LockByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("code = ?", code))
}

func (r *gormCoupons) FindValid(ctx context.Context) ([]models.Coupon, error) {
	var coupons []models.Coupon
	err := r.db.WithContext(ctx).
		Where("is_redeemed = false AND is_revoked = false").
		Order("created_at DESC").
		Find(&coupons).Error
	return coupons, err
}

func (r *gormCoupons) FindSeconds(ctx context.Context, firstID uuid.UUID) ([]models.Coupon, error) {
	var coupons []models.Coupon
	err := r.db.WithContext(ctx).Where("first_coupon_id = ?", firstID).Find(&coupons).Error
	return coupons, err
}

func (r *gormCoupons) MarkRedeemed(ctx context.Context, id, userID uuid.UUID, at time.Time, expiresAt *time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ?", id).
		Where(openCoupon).
		Updates(map[string]interface{}{
			"is_redeemed": true,
			"redeemed_by": userID,
			"redeemed_at": at,
			"expires_at":  expiresAt,
		})
	return affected(res, ErrStale)
}

func (r *gormCoupons) MarkRevoked(ctx context.Context, id uuid.UUID, rev Revocation) error {
	res := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ?", id).
		Where(openCoupon).
		Updates(map[string]interface{}{
			"is_revoked":            true,
			"revoked_at":            rev.At,
			"revoked_by":            rev.By,
			"revoke_reason":         rev.Reason,
			"reissued_to_coupon_id": rev.ReissuedTo,
		})
	return affected(res, ErrStale)
}

func (r *gormCoupons) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Coupon{})
	return affected(res, ErrNotFound)
}

func (r *gormCoupons) Count(ctx context.Context, filter CouponFilter) (int64, error) {
	var n int64
	err := r.adminQuery(ctx, AdminQuery{CouponFilter: filter}, false).Count(&n).Error
	return n, err
}

// adminRow is the scan target of the joined admin listing.
type adminRow struct {
	models.Coupon
	IssuedByName    *string
	IssuedByEmail   *string
	RedeemedByName  *string
	RedeemedByEmail *string
	RevokedByName   *string
	RevokedByEmail  *string
}

const adminColumns = `c.*,
	ib.name AS issued_by_name, ib.email AS issued_by_email,
	rb.name AS redeemed_by_name, rb.email AS redeemed_by_email,
	vb.name AS revoked_by_name, vb.email AS revoked_by_email`

// adminQuery builds the filtered coupon query. Soft-delete scoping is done
// by hand because the users join makes deleted_at ambiguous.
func (r *gormCoupons) adminQuery(ctx context.Context, q AdminQuery, join bool) *gorm.DB {
	db := r.db.WithContext(ctx).Unscoped().Table("coupons AS c").Where("c.deleted_at IS NULL")

	search := strings.TrimSpace(q.Search)
	if join || search != "" {
		db = db.
			Joins("LEFT JOIN users ib ON ib.id = c.issued_by").
			Joins("LEFT JOIN users rb ON rb.id = c.redeemed_by").
			Joins("LEFT JOIN users vb ON vb.id = c.revoked_by")
	}

	switch q.Status {
	case StatusValid:
		db = db.Where("c.is_redeemed = false AND c.is_revoked = false")
	case StatusInvalid:
		db = db.Where("(c.is_redeemed = true OR c.is_revoked = true)")
	case StatusRedeemed:
		db = db.Where("c.is_redeemed = true")
	case StatusRevoked:
		db = db.Where("c.is_revoked = true")
	case StatusAvailable:
		db = db.Where("c.is_redeemed = false AND c.is_revoked = false AND c.reissued_to_coupon_id IS NULL")
	}

	db = between(db, "c.created_at", q.CreatedFrom, q.CreatedTo)
	db = between(db, "c.redeemed_at", q.RedeemedFrom, q.RedeemedTo)
	db = between(db, "c.expires_at", q.ExpiresFrom, q.ExpiresTo)

	if search != "" {
		like := "%" + escapeLike(search) + "%"
		db = db.Where(
			"(c.code ILIKE ? OR ib.name ILIKE ? OR ib.email ILIKE ? OR rb.name ILIKE ? OR rb.email ILIKE ?)",
			like, like, like, like, like,
		)
	}
	return db
}

func between(db *gorm.DB, column string, from, to *time.Time) *gorm.DB {
	if from != nil {
		db = db.Where(column+" >= ?", *from)
	}
	if to != nil {
		db = db.Where(column+" <= ?", *to)
	}
	return db
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *gormCoupons) ListAdmin(ctx context.Context, query AdminQuery) (*AdminPage, error) {
	q := query.Normalize()

	var total int64
	if err := r.adminQuery(ctx, q, false).Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []adminRow
	err := r.adminQuery(ctx, q, true).
		Select(adminColumns).
		Order("c.created_at DESC").
		Limit(q.Limit).
		Offset(q.Offset()).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	return &AdminPage{
		Items:      toAdminCoupons(rows),
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: TotalPages(total, q.Limit),
	}, nil
}

func (r *gormCoupons) ExportAdmin(ctx context.Context, query AdminQuery) ([]AdminCoupon, error) {
	var rows []adminRow
	err := r.adminQuery(ctx, query, true).
		Select(adminColumns).
		Order("c.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toAdminCoupons(rows), nil
}

func toAdminCoupons(rows []adminRow) []AdminCoupon {
	items := make([]AdminCoupon, 0, len(rows))
	for _, row := range rows {
		items = append(items, AdminCoupon{
			Coupon:   row.Coupon,
			Issuer:   userInfo(&row.Coupon.IssuedBy, row.IssuedByName, row.IssuedByEmail),
			Redeemer: userInfo(row.RedeemedBy, row.RedeemedByName, row.RedeemedByEmail),
			Revoker:  userInfo(row.RevokedBy, row.RevokedByName, row.RevokedByEmail),
		})
	}
	return items
}

func userInfo(id *uuid.UUID, name, email *string) *UserInfo {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	info := &UserInfo{ID: *id}
	if name != nil {
		info.Name = *name
	}
	if email != nil {
		info.Email = *email
	}
	return info
}
