package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"

	ProviderLocal = "local"
)

// AuthMethod is one way a user can sign in. Stored inside users.auth_methods.
type AuthMethod struct {
	Provider     string `json:"provider"`
	PasswordHash string `json:"passwordHash,omitempty"`
	ProviderID   string `json:"providerId,omitempty"`
}

// Profile holds the optional sign-up details.
type Profile struct {
	Governorate             string   `json:"governorate,omitempty"`
	EducationAdministration string   `json:"educationAdministration,omitempty"`
	Subjects                []string `json:"subjects,omitempty"`
	Schools                 []string `json:"schools,omitempty"`
	Grades                  []string `json:"grades,omitempty"`
}

type User struct {
	ID               uuid.UUID                      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email            string                         `gorm:"not null;size:255;uniqueIndex" json:"email"`
	Name             string                         `gorm:"not null;size:100" json:"name"`
	WhatsappNumber   string                         `gorm:"not null;size:32;uniqueIndex" json:"whatsappNumber"`
	AuthMethods      datatypes.JSONSlice[AuthMethod] `gorm:"type:jsonb" json:"-"`
	Profile          datatypes.JSONType[Profile]    `gorm:"type:jsonb" json:"profile"`
	Role             string                         `gorm:"size:20;not null;default:'USER'" json:"role"`
	LicenseExpiresAt *time.Time                     `gorm:"index" json:"licenseExpiresAt"`
	CreatedAt        time.Time                      `json:"createdAt"`
	UpdatedAt        time.Time                      `json:"updatedAt"`
	DeletedAt        gorm.DeletedAt                 `gorm:"index" json:"-"`
}

// PasswordHash returns the digest of the first local auth method, if any.
func (u *User) PasswordHash() string {
	for _, m := range u.AuthMethods {
		if m.Provider == ProviderLocal && m.PasswordHash != "" {
			return m.PasswordHash
		}
	}
	return ""
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
