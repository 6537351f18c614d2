package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/google/uuid"
)

type coupons struct {
	s *Store
}

func open(c models.Coupon) bool {
	return !c.IsRedeemed && !c.IsRevoked && c.ReissuedToCouponID == nil
}

func (r *coupons) Create(_ context.Context, coupon *models.Coupon) error {
	defer r.s.lock()()
	for _, c := range r.s.data.coupons {
		if c.Code == coupon.Code {
			return repository.ErrDuplicate
		}
	}
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	now := r.s.now()
	coupon.CreatedAt, coupon.UpdatedAt = now, now
	r.s.data.coupons[coupon.ID] = *coupon
	return nil
}

func (r *coupons) find(match func(models.Coupon) bool) (*models.Coupon, error) {
	defer r.s.lock()()
	for _, c := range r.s.data.coupons {
		if !c.DeletedAt.Valid && match(c) {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *coupons) FindByID(_ context.Context, id uuid.UUID) (*models.Coupon, error) {
	return r.find(func(c models.Coupon) bool { return c.ID == id })
}

func (r *coupons) FindByCode(_ context.Context, code string) (*models.Coupon, error) {
	return r.find(func(c models.Coupon) bool { return c.Code == code })
}

func (r *coupons) LockByID(_ context.Context, id uuid.UUID) (*models.Coupon, error) {
	defer r.s.lock()()
	c, ok := r.s.data.coupons[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *coupons) LockByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return r.FindByCode(ctx, code)
}

func (r *coupons) list(match func(models.Coupon) bool) []models.Coupon {
	defer r.s.lock()()
	out := []models.Coupon{}
	for _, c := range r.s.data.coupons {
		if !c.DeletedAt.Valid && match(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *coupons) FindValid(_ context.Context) ([]models.Coupon, error) {
	return r.list(func(c models.Coupon) bool { return !c.IsRedeemed && !c.IsRevoked }), nil
}

func (r *coupons) FindSeconds(_ context.Context, firstID uuid.UUID) ([]models.Coupon, error) {
	return r.list(func(c models.Coupon) bool { return c.FirstCouponID != nil && *c.FirstCouponID == firstID }), nil
}

func (r *coupons) update(id uuid.UUID, mutate func(*models.Coupon)) error {
	defer r.s.lock()()
	c, ok := r.s.data.coupons[id]
	if !ok || c.DeletedAt.Valid || !open(c) {
		return repository.ErrStale
	}
	mutate(&c)
	c.UpdatedAt = r.s.now()
	r.s.data.coupons[id] = c
	return nil
}

func (r *coupons) MarkRedeemed(_ context.Context, id, userID uuid.UUID, at time.Time, expiresAt *time.Time) error {
	return r.update(id, func(c *models.Coupon) {
		c.IsRedeemed = true
		c.RedeemedBy = ptr(userID)
		c.RedeemedAt = ptr(at)
		c.ExpiresAt = expiresAt
	})
}

func (r *coupons) MarkRevoked(_ context.Context, id uuid.UUID, rev repository.Revocation) error {
	return r.update(id, func(c *models.Coupon) {
		c.IsRevoked = true
		c.RevokedAt = ptr(rev.At)
		c.RevokedBy = ptr(rev.By)
		c.RevokeReason = rev.Reason
		c.ReissuedToCouponID = rev.ReissuedTo
	})
}

func (r *coupons) Delete(_ context.Context, id uuid.UUID) error {
	defer r.s.lock()()
	c, ok := r.s.data.coupons[id]
	if !ok || c.DeletedAt.Valid {
		return repository.ErrNotFound
	}
	c.DeletedAt.Time, c.DeletedAt.Valid = r.s.now(), true
	r.s.data.coupons[id] = c
	return nil
}

func (r *coupons) Count(_ context.Context, filter repository.CouponFilter) (int64, error) {
	items := r.matching(repository.AdminQuery{CouponFilter: filter})
	return int64(len(items)), nil
}

func (r *coupons) ListAdmin(_ context.Context, query repository.AdminQuery) (*repository.AdminPage, error) {
	q := query.Normalize()
	all := r.matching(q)
	total := int64(len(all))

	start := q.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + q.Limit
	if end > len(all) {
		end = len(all)
	}

	return &repository.AdminPage{
		Items:      all[start:end],
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: repository.TotalPages(total, q.Limit),
	}, nil
}

func (r *coupons) ExportAdmin(_ context.Context, query repository.AdminQuery) ([]repository.AdminCoupon, error) {
	return r.matching(query), nil
}

func (r *coupons) matching(q repository.AdminQuery) []repository.AdminCoupon {
	candidates := r.list(func(c models.Coupon) bool { return matchesFilter(c, q.CouponFilter) })

	defer r.s.lock()()
	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]repository.AdminCoupon, 0, len(candidates))
	for _, c := range candidates {
		item := repository.AdminCoupon{
			Coupon:   c,
			Issuer:   r.info(&c.IssuedBy),
			Redeemer: r.info(c.RedeemedBy),
			Revoker:  r.info(c.RevokedBy),
		}
		if search != "" && !matchesSearch(item, search) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (r *coupons) info(id *uuid.UUID) *repository.UserInfo {
	if id == nil {
		return nil
	}
	info := &repository.UserInfo{ID: *id}
	if u, ok := r.s.data.users[*id]; ok {
		info.Name, info.Email = u.Name, u.Email
	}
	return info
}

func matchesSearch(item repository.AdminCoupon, search string) bool {
	fields := []string{item.Code}
	for _, u := range []*repository.UserInfo{item.Issuer, item.Redeemer} {
		if u != nil {
			fields = append(fields, u.Name, u.Email)
		}
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func matchesFilter(c models.Coupon, f repository.CouponFilter) bool {
	switch f.Status {
	case repository.StatusValid:
		if c.IsRedeemed || c.IsRevoked {
			return false
		}
	case repository.StatusInvalid:
		if !c.IsRedeemed && !c.IsRevoked {
			return false
		}
	case repository.StatusRedeemed:
		if !c.IsRedeemed {
			return false
		}
	case repository.StatusRevoked:
		if !c.IsRevoked {
			return false
		}
	case repository.StatusAvailable:
		if !open(c) {
			return false
		}
	}
	return within(&c.CreatedAt, f.CreatedFrom, f.CreatedTo) &&
		within(c.RedeemedAt, f.RedeemedFrom, f.RedeemedTo) &&
		within(c.ExpiresAt, f.ExpiresFrom, f.ExpiresTo)
}

// within mirrors SQL: a NULL column never satisfies a bound.
func within(v, from, to *time.Time) bool {
	if from == nil && to == nil {
		return true
	}
	if v == nil {
		return false
	}
	if from != nil && v.Before(*from) {
		return false
	}
	if to != nil && v.After(*to) {
		return false
	}
	return true
}
