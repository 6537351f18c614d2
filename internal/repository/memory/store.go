// Package memory is an in-process Store used by tests. A transaction holds
// the store-wide lock for its whole duration and restores a snapshot on
// rollback.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/google/uuid"
)

type state struct {
	users    map[uuid.UUID]models.User
	sessions map[uuid.UUID]models.Session
	coupons  map[uuid.UUID]models.Coupon
}

func (s *state) clone() *state {
	cp := &state{
		users:    make(map[uuid.UUID]models.User, len(s.users)),
		sessions: make(map[uuid.UUID]models.Session, len(s.sessions)),
		coupons:  make(map[uuid.UUID]models.Coupon, len(s.coupons)),
	}
	for k, v := range s.users {
		cp.users[k] = v
	}
	for k, v := range s.sessions {
		cp.sessions[k] = v
	}
	for k, v := range s.coupons {
		cp.coupons[k] = v
	}
	return cp
}

type Store struct {
	mu   *sync.Mutex
	data *state
	inTx bool
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		data: &state{
			users:    map[uuid.UUID]models.User{},
			sessions: map[uuid.UUID]models.Session{},
			coupons:  map[uuid.UUID]models.Coupon{},
		},
		now: time.Now,
	}
}

// SetClock overrides the time source used for expiry checks and timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// lock is a no-op inside a transaction, which already holds the mutex.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Users() repository.UserRepository       { return &users{s} }
func (s *Store) Sessions() repository.SessionRepository { return &sessions{s} }
func (s *Store) Coupons() repository.CouponRepository   { return &coupons{s} }

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.data.clone()
	tx := &Store{mu: s.mu, data: s.data, inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
