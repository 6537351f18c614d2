package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository/memory"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/security"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/token"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "Passw0rd!"

type testEnv struct {
	store   *memory.Store
	codec   *token.Codec
	auth    *AuthService
	license *LicenseService
	admin   models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	cfg := &config.Config{
		DefaultPhoneRegion: "US",
		CouponCodeBytes:    token.DefaultCodeBytes,
		CouponCodeRetries:  3,
	}
	codec := token.NewCodec("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	admin := models.User{
		ID:             uuid.New(),
		Name:           "Admin",
		Email:          "admin@example.com",
		WhatsappNumber: "+10000000000",
		Role:           models.RoleAdmin,
	}
	store.Put(admin)
	return &testEnv{
		store:   store,
		codec:   codec,
		auth:    NewAuthService(store, codec, security.NewHasher(4), cfg),
		license: NewLicenseService(store, codec, token.TestSigner(), cfg),
		admin:   admin,
	}
}

func (e *testEnv) signUp(t *testing.T, email, phone string) *dto.TokenResponse {
	t.Helper()
	resp, err := e.auth.SignUp(context.Background(), &dto.SignUpRequest{
		Name:           "Test User",
		Email:          email,
		Password:       testPassword,
		WhatsappNumber: phone,
	}, ClientInfo{UserAgent: "go-test", IP: "127.0.0.1"})
	require.NoError(t, err)
	return resp
}

// addUser seeds a user directly, skipping sign-up.
func (e *testEnv) addUser(t *testing.T, licenseExpiresAt *time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	e.store.Put(models.User{
		ID:               id,
		Name:             "Redeemer",
		Email:            id.String() + "@example.com",
		WhatsappNumber:   id.String(),
		Role:             models.RoleUser,
		LicenseExpiresAt: licenseExpiresAt,
	})
	return id
}

func (e *testEnv) createPair(t *testing.T, days int) *dto.CouponPairResponse {
	t.Helper()
	pair, err := e.license.CreateCoupon(context.Background(), &dto.CreateCouponRequest{Duration: &days}, e.admin.ID)
	require.NoError(t, err)
	return pair
}

func (e *testEnv) redeem(userID uuid.UUID, code string) (*dto.RedeemResponse, error) {
	return e.license.RedeemCoupon(context.Background(), &dto.RedeemCouponRequest{Code: code}, userID)
}

func assertAppErr(t *testing.T, err error, kind apperr.Kind, message string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr), "expected *apperr.Error, got %T: %v", err, err)
	assert.Equal(t, kind, appErr.Kind)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}
