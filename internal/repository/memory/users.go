package memory

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/google/uuid"
)

type users struct {
	s *Store
}

func (r *users) Create(_ context.Context, user *models.User) error {
	defer r.s.lock()()
	for _, u := range r.s.data.users {
		if u.Email == user.Email || u.WhatsappNumber == user.WhatsappNumber {
			return repository.ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	now := r.s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.data.users[user.ID] = *user
	return nil
}

func (r *users) find(match func(models.User) bool) (*models.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.data.users {
		if !u.DeletedAt.Valid && match(u) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *users) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r *users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email == email })
}

func (r *users) FindByWhatsapp(_ context.Context, number string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.WhatsappNumber == number })
}

func (r *users) LockByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.FindByID(ctx, id)
}

func (r *users) SetLicenseExpiry(_ context.Context, id uuid.UUID, expiresAt time.Time) error {
	defer r.s.lock()()
	u, ok := r.s.data.users[id]
	if !ok || u.DeletedAt.Valid {
		return repository.ErrNotFound
	}
	u.LicenseExpiresAt = ptr(expiresAt)
	u.UpdatedAt = r.s.now()
	r.s.data.users[id] = u
	return nil
}

func (r *users) CountLicenses(_ context.Context, now time.Time, active bool) (int64, error) {
	defer r.s.lock()()
	var n int64
	for _, u := range r.s.data.users {
		if u.DeletedAt.Valid || u.LicenseExpiresAt == nil {
			continue
		}
		if u.LicenseExpiresAt.After(now) == active {
			n++
		}
	}
	return n, nil
}

// Put stores user as-is, bypassing uniqueness checks. Test seeding only.
func (s *Store) Put(user models.User) {
	defer s.lock()()
	s.data.users[user.ID] = user
}

// DeleteUser soft-deletes a user. Test seeding only.
func (s *Store) DeleteUser(id uuid.UUID) {
	defer s.lock()()
	u := s.data.users[id]
	u.DeletedAt.Time, u.DeletedAt.Valid = s.now(), true
	s.data.users[id] = u
}
