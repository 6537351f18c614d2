package repository

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormUsers struct {
	db *gorm.DB
}

func (r *gormUsers) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	// Nested Transaction is a savepoint when already inside WithTx, so a
	// unique violation does not poison the outer transaction.
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(user).Error
	}))
}

func (r *gormUsers) first(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *gormUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *gormUsers) FindByWhatsapp(ctx context.Context, number string) (*models.User, error) {
	return r.first(ctx, "whatsapp_number = ?", number)
}

func (r *gormUsers) LockByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *gormUsers) SetLicenseExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("license_expires_at", expiresAt)
	return affected(res, ErrNotFound)
}

func (r *gormUsers) CountLicenses(ctx context.Context, now time.Time, active bool) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{}).Where("license_expires_at IS NOT NULL")
	if active {
		q = q.Where("license_expires_at > ?", now)
	} else {
		q = q.Where("license_expires_at <= ?", now)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
