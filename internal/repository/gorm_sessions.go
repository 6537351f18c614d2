package repository

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormSessions struct {
	db  *gorm.DB
	now func() time.Time
}

const validSession = "expires_at > ? AND revoked_at IS NULL"

func (r *gormSessions) Create(ctx context.Context, session *models.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	return translate(r.db.WithContext(ctx).Create(session).Error)
}

func (r *gormSessions) FindByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var s models.Session
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Where(validSession, r.now()).
		First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *gormSessions) FindByUserID(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *gormSessions) FindValidByUserID(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where(validSession, r.now()).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *gormSessions) FindValidByDigest(ctx context.Context, digest string) (*models.Session, error) {
	if digest == "" {
		return nil, ErrNotFound
	}
	var s models.Session
	err := r.db.WithContext(ctx).
		Where("refresh_token_hash = ?", digest).
		Where(validSession, r.now()).
		First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *gormSessions) SetRefreshDigest(ctx context.Context, id uuid.UUID, digest string) error {
	res := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND refresh_token_hash = ''", id).
		Update("refresh_token_hash", digest)
	return affected(res, ErrStale)
}

func (r *gormSessions) Rotate(ctx context.Context, id uuid.UUID, oldDigest, newDigest string, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND refresh_token_hash = ?", id, oldDigest).
		Where(validSession, r.now()).
		Updates(map[string]interface{}{
			"refresh_token_hash": newDigest,
			"expires_at":         expiresAt,
		})
	return affected(res, ErrStale)
}

func (r *gormSessions) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{})
	return affected(res, ErrNotFound)
}

func (r *gormSessions) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

func (r *gormSessions) DeleteExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", r.now()).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

func (r *gormSessions) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Session{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
