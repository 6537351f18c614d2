package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one login. RefreshTokenHash holds the digest of the current
// refresh token and is rewritten in place on every rotation. Rows are hard
// deleted on sign-out.
type Session struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"userId"`
	RefreshTokenHash string     `gorm:"size:64;not null;default:'';index" json:"-"`
	ExpiresAt        time.Time  `gorm:"not null;index" json:"expiresAt"`
	UserAgent        string     `gorm:"size:512" json:"userAgent,omitempty"`
	IP               string     `gorm:"size:64" json:"ip,omitempty"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Active reports whether the session can still be used at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
