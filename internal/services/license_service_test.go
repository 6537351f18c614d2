package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository/memory"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreateCouponPair(t *testing.T) {
	env := newTestEnv(t)
	pair, err := env.license.CreateCoupon(context.Background(), &dto.CreateCouponRequest{}, env.admin.ID)
	require.NoError(t, err)

	first, second := pair.FirstCoupon, pair.SecondCoupon
	assert.True(t, first.IsFirstCode)
	assert.Zero(t, first.Duration)
	assert.False(t, second.IsFirstCode)
	assert.Equal(t, dto.DefaultCouponDuration, second.Duration)
	require.NotNil(t, second.FirstCouponID)
	assert.Equal(t, first.ID, *second.FirstCouponID)
	assert.Len(t, first.Code, 2*token.DefaultCodeBytes)
	assert.NotEqual(t, first.Code, second.Code)
	assert.Equal(t, models.CouponStatusValid, second.Status)
	assert.Equal(t, env.admin.ID, second.IssuedBy)
}

func TestCreateCouponDurationBounds(t *testing.T) {
	env := newTestEnv(t)
	for _, days := range []int{0, -1, 101} {
		d := days
		_, err := env.license.CreateCoupon(context.Background(), &dto.CreateCouponRequest{Duration: &d}, env.admin.ID)
		assertAppErr(t, err, apperr.KindBadRequest, "")
	}
}

// collidingStore makes the first n coupon inserts fail with ErrDuplicate.
type collidingStore struct {
	*memory.Store
	remaining *int
}

func (s *collidingStore) Coupons() repository.CouponRepository {
	return &collidingCoupons{CouponRepository: s.Store.Coupons(), remaining: s.remaining}
}

type collidingCoupons struct {
	repository.CouponRepository
	remaining *int
}

func (c *collidingCoupons) Create(ctx context.Context, coupon *models.Coupon) error {
	if *c.remaining > 0 {
		*c.remaining--
		return repository.ErrDuplicate
	}
	return c.CouponRepository.Create(ctx, coupon)
}

func TestInsertWithCodeRetriesCollisions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	remaining := 2
	store := &collidingStore{Store: memory.New(), remaining: &remaining}
	coupon := &models.Coupon{IssuedBy: env.admin.ID}
	require.NoError(t, env.license.insertWithCode(ctx, store, coupon))
	assert.NotEmpty(t, coupon.Code)

	remaining = 3
	err := env.license.insertWithCode(ctx, store, &models.Coupon{IssuedBy: env.admin.ID})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestRedeemChain(t *testing.T) {
	env := newTestEnv(t)
	env.license.now = func() time.Time { return fixedNow }
	pair := env.createPair(t, 30)
	user := env.addUser(t, nil)

	resp, err := env.redeem(user, pair.FirstCoupon.Code)
	require.NoError(t, err)
	assert.Equal(t, FirstCodeAccepted, resp.Message)
	assert.Empty(t, resp.License)

	resp, err = env.redeem(user, pair.SecondCoupon.Code)
	require.NoError(t, err)
	want := fixedNow.Add(30 * 24 * time.Hour)
	require.NotNil(t, resp.ExpiresAt)
	assert.True(t, want.Equal(*resp.ExpiresAt))

	claims := &token.LicenseClaims{}
	_, err = jwt.ParseWithClaims(resp.License, claims, func(*jwt.Token) (interface{}, error) {
		return token.TestSigner().Public(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	require.NoError(t, err)
	assert.Equal(t, user.String(), claims.UserID)
	assert.Equal(t, want.Format(time.RFC3339Nano), claims.LicenseExpiresAt)

	u, err := env.store.Users().FindByID(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, u.LicenseExpiresAt)
	assert.True(t, want.Equal(*u.LicenseExpiresAt))

	second, err := env.store.Coupons().FindByID(context.Background(), pair.SecondCoupon.ID)
	require.NoError(t, err)
	assert.True(t, second.IsRedeemed)
	assert.Equal(t, user, *second.RedeemedBy)
	assert.True(t, want.Equal(*second.ExpiresAt))
}

func TestRedeemSecondBeforeFirstLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, 30)
	user := env.addUser(t, nil)

	_, err := env.redeem(user, pair.SecondCoupon.Code)
	assertAppErr(t, err, apperr.KindBadRequest, "First code must be redeemed first")

	second, err := env.store.Coupons().FindByID(context.Background(), pair.SecondCoupon.ID)
	require.NoError(t, err)
	assert.False(t, second.IsRedeemed)
	u, err := env.store.Users().FindByID(context.Background(), user)
	require.NoError(t, err)
	assert.Nil(t, u.LicenseExpiresAt)
}

func TestRedeemSecondByAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, 30)
	alice, bob := env.addUser(t, nil), env.addUser(t, nil)

	_, err := env.redeem(alice, pair.FirstCoupon.Code)
	require.NoError(t, err)
	_, err = env.redeem(bob, pair.SecondCoupon.Code)
	assertAppErr(t, err, apperr.KindBadRequest, "First code was redeemed by another user")

	_, err = env.redeem(alice, pair.SecondCoupon.Code)
	require.NoError(t, err)
}

func TestRedeemTwiceAndUnknownCode(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, 30)
	user := env.addUser(t, nil)

	_, err := env.redeem(user, pair.FirstCoupon.Code)
	require.NoError(t, err)
	_, err = env.redeem(user, pair.FirstCoupon.Code)
	assertAppErr(t, err, apperr.KindBadRequest, "Coupon already redeemed")

	_, err = env.redeem(user, "does-not-exist")
	assertAppErr(t, err, apperr.KindNotFound, "Coupon not found")

	_, err = env.redeem(user, "")
	assertAppErr(t, err, apperr.KindBadRequest, "")
}

func TestRedeemStacksOnActiveLicense(t *testing.T) {
	env := newTestEnv(t)
	env.license.now = func() time.Time { return fixedNow }

	active := fixedNow.Add(10 * 24 * time.Hour)
	user := env.addUser(t, &active)
	pair := env.createPair(t, 5)

	_, err := env.redeem(user, pair.FirstCoupon.Code)
	require.NoError(t, err)
	resp, err := env.redeem(user, pair.SecondCoupon.Code)
	require.NoError(t, err)
	assert.True(t, fixedNow.Add(15*24*time.Hour).Equal(*resp.ExpiresAt))
}

func TestRedeemRestartsExpiredLicense(t *testing.T) {
	env := newTestEnv(t)
	env.license.now = func() time.Time { return fixedNow }

	expired := fixedNow.Add(-3 * 24 * time.Hour)
	user := env.addUser(t, &expired)
	pair := env.createPair(t, 5)

	_, err := env.redeem(user, pair.FirstCoupon.Code)
	require.NoError(t, err)
	resp, err := env.redeem(user, pair.SecondCoupon.Code)
	require.NoError(t, err)
	assert.True(t, fixedNow.Add(5*24*time.Hour).Equal(*resp.ExpiresAt))
}

func TestConcurrentRedeemGrantsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.license.now = func() time.Time { return fixedNow }
	pair := env.createPair(t, 7)
	user := env.addUser(t, nil)
	_, err := env.redeem(user, pair.FirstCoupon.Code)
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.redeem(user, pair.SecondCoupon.Code); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	u, err := env.store.Users().FindByID(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, fixedNow.Add(7*24*time.Hour).Equal(*u.LicenseExpiresAt))
}

func TestRedeemWithoutSignerChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.license.signer = nil
	pair := env.createPair(t, 30)
	user := env.addUser(t, nil)

	_, err := env.redeem(user, pair.FirstCoupon.Code)
	assertAppErr(t, err, apperr.KindInternal, "")

	first, err := env.store.Coupons().FindByID(context.Background(), pair.FirstCoupon.ID)
	require.NoError(t, err)
	assert.False(t, first.IsRedeemed)

	_, err = env.license.PublicKeyPEM()
	assertAppErr(t, err, apperr.KindNotFound, "")
}

func TestRevokeCoupon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := env.createPair(t, 30)
	id := pair.SecondCoupon.ID.String()

	revoked, err := env.license.RevokeCoupon(ctx, id, &dto.ReasonRequest{Reason: "leaked"}, env.admin.ID)
	require.NoError(t, err)
	assert.True(t, revoked.IsRevoked)
	assert.Equal(t, "leaked", revoked.RevokeReason)
	assert.Equal(t, env.admin.ID, *revoked.RevokedBy)
	assert.Equal(t, models.CouponStatusRevoked, revoked.Status)

	before, err := env.store.Coupons().FindByID(ctx, pair.SecondCoupon.ID)
	require.NoError(t, err)
	require.NotNil(t, before.RevokedAt)

	other := env.addUser(t, nil)
	_, err = env.license.RevokeCoupon(ctx, id, &dto.ReasonRequest{Reason: "second attempt"}, other)
	assertAppErr(t, err, apperr.KindBadRequest, "Coupon already revoked")

	after, err := env.store.Coupons().FindByID(ctx, pair.SecondCoupon.ID)
	require.NoError(t, err)
	require.NotNil(t, after.RevokedAt)
	assert.True(t, before.RevokedAt.Equal(*after.RevokedAt))
	require.NotNil(t, after.RevokedBy)
	assert.Equal(t, env.admin.ID, *after.RevokedBy)
	assert.Equal(t, "leaked", after.RevokeReason)

	_, err = env.license.ReissueCoupon(ctx, id, &dto.ReasonRequest{}, env.admin.ID)
	assertAppErr(t, err, apperr.KindBadRequest, "Cannot reissue a revoked coupon")
	_, err = env.license.DeleteCoupon(ctx, id)
	assertAppErr(t, err, apperr.KindBadRequest, "Cannot delete a revoked coupon")

	user := env.addUser(t, nil)
	_, err = env.redeem(user, pair.FirstCoupon.Code)
	require.NoError(t, err)
	_, err = env.redeem(user, pair.SecondCoupon.Code)
	assertAppErr(t, err, apperr.KindBadRequest, "Coupon has been revoked")
}

func TestRevokeRejectsRedeemedAndBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := env.createPair(t, 30)
	user := env.addUser(t, nil)
	_, err := env.redeem(user, pair.FirstCoupon.Code)
	require.NoError(t, err)

	_, err = env.license.RevokeCoupon(ctx, pair.FirstCoupon.ID.String(), &dto.ReasonRequest{}, env.admin.ID)
	assertAppErr(t, err, apperr.KindBadRequest, "Cannot revoke a redeemed coupon")

	_, err = env.license.RevokeCoupon(ctx, "not-a-uuid", &dto.ReasonRequest{}, env.admin.ID)
	assertAppErr(t, err, apperr.KindBadRequest, "Invalid coupon id")

	_, err = env.license.RevokeCoupon(ctx, uuid.NewString(), &dto.ReasonRequest{}, env.admin.ID)
	assertAppErr(t, err, apperr.KindNotFound, "Coupon not found")

	long := make([]byte, dto.MaxReasonLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = env.license.RevokeCoupon(ctx, pair.SecondCoupon.ID.String(), &dto.ReasonRequest{Reason: string(long)}, env.admin.ID)
	assertAppErr(t, err, apperr.KindBadRequest, "")
}

func TestReissueCoupon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := env.createPair(t, 12)
	old := pair.SecondCoupon

	resp, err := env.license.ReissueCoupon(ctx, old.ID.String(), &dto.ReasonRequest{}, env.admin.ID)
	require.NoError(t, err)

	assert.True(t, resp.OldCoupon.IsRevoked)
	assert.Equal(t, DefaultReissueReason, resp.OldCoupon.RevokeReason)
	require.NotNil(t, resp.OldCoupon.ReissuedToCouponID)
	assert.Equal(t, resp.NewCoupon.ID, *resp.OldCoupon.ReissuedToCouponID)

	assert.Equal(t, 12, resp.NewCoupon.Duration)
	assert.Equal(t, old.ID, *resp.NewCoupon.ReissuedFromCouponID)
	assert.Equal(t, *old.FirstCouponID, *resp.NewCoupon.FirstCouponID)
	assert.NotEqual(t, old.Code, resp.NewCoupon.Code)

	_, err = env.license.ReissueCoupon(ctx, old.ID.String(), &dto.ReasonRequest{}, env.admin.ID)
	assertAppErr(t, err, apperr.KindBadRequest, "Cannot reissue a revoked coupon")
	_, err = env.license.DeleteCoupon(ctx, old.ID.String())
	assertAppErr(t, err, apperr.KindBadRequest, "Cannot delete a reissued coupon")

	_, err = env.license.ReissueCoupon(ctx, pair.FirstCoupon.ID.String(), &dto.ReasonRequest{}, env.admin.ID)
	assertAppErr(t, err, apperr.KindBadRequest, "First coupons cannot be reissued")

	user := env.addUser(t, nil)
	_, err = env.redeem(user, pair.FirstCoupon.Code)
	require.NoError(t, err)
	_, err = env.redeem(user, resp.NewCoupon.Code)
	require.NoError(t, err)
}

func TestDeleteFirstCouponCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := env.createPair(t, 30)

	resp, err := env.license.DeleteCoupon(ctx, pair.FirstCoupon.ID.String())
	require.NoError(t, err)
	assert.True(t, resp.Deleted)

	_, err = env.store.Coupons().FindByID(ctx, pair.FirstCoupon.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = env.store.Coupons().FindByID(ctx, pair.SecondCoupon.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = env.license.DeleteCoupon(ctx, pair.FirstCoupon.ID.String())
	assertAppErr(t, err, apperr.KindBadRequest, "Coupon has been deleted")
	_, err = env.license.RevokeCoupon(ctx, pair.SecondCoupon.ID.String(), &dto.ReasonRequest{}, env.admin.ID)
	assertAppErr(t, err, apperr.KindBadRequest, "Coupon has been deleted")
}

func TestDeleteRedeemedCoupon(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, 30)
	user := env.addUser(t, nil)
	_, err := env.redeem(user, pair.FirstCoupon.Code)
	require.NoError(t, err)

	_, err = env.license.DeleteCoupon(context.Background(), pair.FirstCoupon.ID.String())
	assertAppErr(t, err, apperr.KindBadRequest, "Cannot delete a redeemed coupon")

	resp, err := env.license.DeleteCoupon(context.Background(), pair.SecondCoupon.ID.String())
	require.NoError(t, err)
	assert.True(t, resp.Deleted)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.license.now = func() time.Time { return fixedNow }

	redeemed := env.createPair(t, 30)
	revoked := env.createPair(t, 30)
	env.createPair(t, 30)

	user := env.addUser(t, nil)
	_, err := env.redeem(user, redeemed.FirstCoupon.Code)
	require.NoError(t, err)
	_, err = env.redeem(user, redeemed.SecondCoupon.Code)
	require.NoError(t, err)
	_, err = env.license.RevokeCoupon(ctx, revoked.SecondCoupon.ID.String(), &dto.ReasonRequest{}, env.admin.ID)
	require.NoError(t, err)

	expired := fixedNow.Add(-time.Hour)
	env.addUser(t, &expired)

	stats, err := env.license.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, dto.StatsResponse{
		Total:           6,
		Valid:           3,
		Invalid:         3,
		Redeemed:        2,
		Revoked:         1,
		Available:       3,
		ActiveLicenses:  1,
		ExpiredLicenses: 1,
	}, *stats)
}

func TestListCoupons(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := env.createPair(t, 30)
	env.createPair(t, 30)
	user := env.addUser(t, nil)
	_, err := env.redeem(user, pair.FirstCoupon.Code)
	require.NoError(t, err)

	page, err := env.license.ListCoupons(ctx, repository.AdminQuery{Limit: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 3)
	require.NotNil(t, page.Items[0].IssuedByUser)
	assert.Equal(t, "Admin", page.Items[0].IssuedByUser.Name)

	redeemed, err := env.license.ListRedeemedCoupons(ctx, repository.AdminQuery{})
	require.NoError(t, err)
	require.Len(t, redeemed.Items, 1)
	assert.Equal(t, pair.FirstCoupon.ID, redeemed.Items[0].ID)
	assert.Equal(t, models.CouponStatusRedeemed, redeemed.Items[0].Status)

	from, to := fixedNow, fixedNow.Add(-time.Hour)
	_, err = env.license.ListCoupons(ctx, repository.AdminQuery{
		CouponFilter: repository.CouponFilter{CreatedFrom: &from, CreatedTo: &to},
	})
	assertAppErr(t, err, apperr.KindBadRequest, "Invalid created date range")
}

func TestExtendLicense(t *testing.T) {
	future := fixedNow.Add(48 * time.Hour)
	past := fixedNow.Add(-48 * time.Hour)

	assert.Equal(t, fixedNow.Add(24*time.Hour), ExtendLicense(nil, fixedNow, 1))
	assert.Equal(t, future.Add(24*time.Hour), ExtendLicense(&future, fixedNow, 1))
	assert.Equal(t, fixedNow.Add(24*time.Hour), ExtendLicense(&past, fixedNow, 1))
}
