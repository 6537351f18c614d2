package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/google/uuid"
)

type sessions struct {
	s *Store
}

func (r *sessions) Create(_ context.Context, session *models.Session) error {
	defer r.s.lock()()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if _, ok := r.s.data.sessions[session.ID]; ok {
		return repository.ErrDuplicate
	}
	now := r.s.now()
	session.CreatedAt, session.UpdatedAt = now, now
	r.s.data.sessions[session.ID] = *session
	return nil
}

func (r *sessions) valid(sess models.Session) bool {
	return sess.Active(r.s.now())
}

func (r *sessions) FindByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	defer r.s.lock()()
	sess, ok := r.s.data.sessions[id]
	if !ok || !r.valid(sess) {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

func (r *sessions) list(match func(models.Session) bool) []models.Session {
	defer r.s.lock()()
	out := []models.Session{}
	for _, sess := range r.s.data.sessions {
		if match(sess) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *sessions) FindByUserID(_ context.Context, userID uuid.UUID) ([]models.Session, error) {
	return r.list(func(sess models.Session) bool { return sess.UserID == userID }), nil
}

func (r *sessions) FindValidByUserID(_ context.Context, userID uuid.UUID) ([]models.Session, error) {
	return r.list(func(sess models.Session) bool { return sess.UserID == userID && r.valid(sess) }), nil
}

func (r *sessions) FindValidByDigest(_ context.Context, digest string) (*models.Session, error) {
	if digest == "" {
		return nil, repository.ErrNotFound
	}
	found := r.list(func(sess models.Session) bool { return sess.RefreshTokenHash == digest && r.valid(sess) })
	if len(found) == 0 {
		return nil, repository.ErrNotFound
	}
	return &found[0], nil
}

func (r *sessions) SetRefreshDigest(_ context.Context, id uuid.UUID, digest string) error {
	defer r.s.lock()()
	sess, ok := r.s.data.sessions[id]
	if !ok || sess.RefreshTokenHash != "" {
		return repository.ErrStale
	}
	sess.RefreshTokenHash = digest
	sess.UpdatedAt = r.s.now()
	r.s.data.sessions[id] = sess
	return nil
}

func (r *sessions) Rotate(_ context.Context, id uuid.UUID, oldDigest, newDigest string, expiresAt time.Time) error {
	defer r.s.lock()()
	sess, ok := r.s.data.sessions[id]
	if !ok || !r.valid(sess) || sess.RefreshTokenHash != oldDigest {
		return repository.ErrStale
	}
	sess.RefreshTokenHash = newDigest
	sess.ExpiresAt = expiresAt
	sess.UpdatedAt = r.s.now()
	r.s.data.sessions[id] = sess
	return nil
}

func (r *sessions) Delete(_ context.Context, id uuid.UUID) error {
	defer r.s.lock()()
	if _, ok := r.s.data.sessions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.data.sessions, id)
	return nil
}

func (r *sessions) deleteWhere(match func(models.Session) bool) int64 {
	defer r.s.lock()()
	var n int64
	for id, sess := range r.s.data.sessions {
		if match(sess) {
			delete(r.s.data.sessions, id)
			n++
		}
	}
	return n
}

func (r *sessions) DeleteByUserID(_ context.Context, userID uuid.UUID) (int64, error) {
	return r.deleteWhere(func(sess models.Session) bool { return sess.UserID == userID }), nil
}

func (r *sessions) DeleteExpired(_ context.Context) (int64, error) {
	now := r.s.now()
	return r.deleteWhere(func(sess models.Session) bool { return !sess.ExpiresAt.After(now) }), nil
}

func (r *sessions) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	all, _ := r.FindByUserID(ctx, userID)
	return int64(len(all)), nil
}
