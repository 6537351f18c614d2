package dto

import (
	"regexp"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

var passwordCharset = regexp.MustCompile(`^[A-Za-z\d@$!%*?&]+$`)

type SignUpRequest struct {
	Name                    string   `json:"name"`
	Email                   string   `json:"email"`
	Password                string   `json:"password"`
	WhatsappNumber          string   `json:"whatsapp_number"`
	Governorate             string   `json:"governorate"`
	EducationAdministration string   `json:"education_administration"`
	Subjects                []string `json:"subjects"`
	Schools                 []string `json:"schools"`
	Grades                  []string `json:"grades"`
}

func (r SignUpRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.RuneLength(3, 50)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password,
			validation.Required,
			validation.Length(8, 50),
			validation.Match(passwordCharset).Error("contains unsupported characters"),
			validation.By(strongPassword),
		),
		validation.Field(&r.WhatsappNumber, validation.Required),
		validation.Field(&r.Governorate, validation.RuneLength(0, 100)),
		validation.Field(&r.EducationAdministration, validation.RuneLength(0, 100)),
	)
}

// Sanitize trims the free-text fields and lowercases the email.
func (r *SignUpRequest) Sanitize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
	r.Governorate = strings.TrimSpace(r.Governorate)
	r.EducationAdministration = strings.TrimSpace(r.EducationAdministration)
}

// NormalizePhone rewrites the WhatsApp number to E.164.
func (r *SignUpRequest) NormalizePhone(defaultRegion string) error {
	number, err := NormalizePhone(r.WhatsappNumber, defaultRegion)
	if err != nil {
		return err
	}
	r.WhatsappNumber = number
	return nil
}

func (r *SignUpRequest) Profile() models.Profile {
	return models.Profile{
		Governorate:             r.Governorate,
		EducationAdministration: r.EducationAdministration,
		Subjects:                compact(r.Subjects),
		Schools:                 compact(r.Schools),
		Grades:                  compact(r.Grades),
	}
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r SignInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 128)),
	)
}

// TokenResponse is returned by sign-up, sign-in and refresh. The same
// tokens are mirrored into cookies by the handler.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type UserResponse struct {
	ID               uuid.UUID      `json:"id"`
	Name             string         `json:"name"`
	Email            string         `json:"email"`
	WhatsappNumber   string         `json:"whatsappNumber"`
	Role             string         `json:"role"`
	Profile          models.Profile `json:"profile"`
	LicenseExpiresAt *time.Time     `json:"licenseExpiresAt"`
	SessionID        string         `json:"sessionId,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		WhatsappNumber:   u.WhatsappNumber,
		Role:             u.Role,
		Profile:          u.Profile.Data(),
		LicenseExpiresAt: u.LicenseExpiresAt,
		CreatedAt:        u.CreatedAt,
	}
}

type SessionResponse struct {
	ID        uuid.UUID `json:"id"`
	UserAgent string    `json:"userAgent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Current   bool      `json:"current"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type SignOutAllResponse struct {
	Terminated int64 `json:"terminated"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
	Redis     string `json:"redis,omitempty"`
}

func compact(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
