package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
)

// StartSessionReaper deletes expired sessions every interval until done is
// closed. Expired sessions are already unusable; this only reclaims rows.
func StartSessionReaper(store repository.Store, interval time.Duration, done chan struct{}) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ReapSessions(context.Background(), store)
			case <-done:
				return
			}
		}
	}()
}

func ReapSessions(ctx context.Context, store repository.Store) int64 {
	n, err := store.Sessions().DeleteExpired(ctx)
	if err != nil {
		slog.Error("session reap failed", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("expired sessions deleted", "deleted", n)
	}
	return n
}
