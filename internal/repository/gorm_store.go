package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// GormStore implements Store on Postgres through GORM. The *gorm.DB must be
// opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Users() UserRepository       { return &gormUsers{db: s.db} }
func (s *GormStore) Sessions() SessionRepository { return &gormSessions{db: s.db, now: s.now} }
func (s *GormStore) Coupons() CouponRepository   { return &gormCoupons{db: s.db} }

func (s *GormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, now: s.now})
	})
}

// translate maps GORM errors onto the repository sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// affected turns a zero-row conditional write into ifNone.
func affected(res *gorm.DB, ifNone error) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ifNone
	}
	return nil
}
