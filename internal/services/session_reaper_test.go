package services

import (
	"context"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReapSessions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user := uuid.New()
	now := time.Now()

	require.NoError(t, store.Sessions().Create(ctx, &models.Session{UserID: user, ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Sessions().Create(ctx, &models.Session{UserID: user, ExpiresAt: now.Add(time.Hour)}))

	assert.EqualValues(t, 1, ReapSessions(ctx, store))
	assert.EqualValues(t, 0, ReapSessions(ctx, store))

	n, err := store.Sessions().CountByUserID(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStartSessionReaperDeletesInBackground(t *testing.T) {
	store := memory.New()
	user := uuid.New()
	require.NoError(t, store.Sessions().Create(context.Background(), &models.Session{
		UserID:    user,
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	done := make(chan struct{})
	defer close(done)
	StartSessionReaper(store, 10*time.Millisecond, done)

	assert.Eventually(t, func() bool {
		n, _ := store.Sessions().CountByUserID(context.Background(), user)
		return n == 0
	}, time.Second, 10*time.Millisecond)
}
