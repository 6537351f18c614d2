// Package token signs and verifies the access, refresh and license JWTs.
package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for every verification failure. Callers must
// not be able to tell a bad signature from an expired token.
var ErrInvalidToken = errors.New("invalid token")

var ErrUnsupportedKey = errors.New("unsupported signing key")

// Payload identifies the user and session a token pair is bound to.
type Payload struct {
	UserID    string
	Email     string
	SessionID string
}

// Claims is the body of access and refresh tokens.
type Claims struct {
	UserID    string `json:"id"`
	Email     string `json:"email"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// LicenseClaims is the body of a license token, verified by relying parties.
type LicenseClaims struct {
	UserID           string `json:"id"`
	LicenseExpiresAt string `json:"expiresAt"`
	jwt.RegisteredClaims
}

type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// WithClock returns a copy of the codec that reads time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *Codec) IssueAccessToken(p Payload) (string, error) {
	return c.issue(p, c.accessSecret, c.accessTTL)
}

func (c *Codec) IssueRefreshToken(p Payload) (string, error) {
	return c.issue(p, c.refreshSecret, c.refreshTTL)
}

// IssuePair mints an access and a refresh token for the same payload.
func (c *Codec) IssuePair(p Payload) (access, refresh string, err error) {
	access, err = c.IssueAccessToken(p)
	if err != nil {
		return "", "", err
	}
	refresh, err = c.IssueRefreshToken(p)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (c *Codec) issue(p Payload, secret []byte, ttl time.Duration) (string, error) {
	now := c.now().UTC()
	claims := Claims{
		UserID:    p.UserID,
		Email:     p.Email,
		SessionID: p.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (c *Codec) VerifyAccessToken(tokenString string) (*Claims, error) {
	return c.verify(tokenString, c.accessSecret)
}

func (c *Codec) VerifyRefreshToken(tokenString string) (*Claims, error) {
	return c.verify(tokenString, c.refreshSecret)
}

func (c *Codec) verify(tokenString string, secret []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, hmacKey(secret),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccessKeyFunc exposes the access-token key lookup for middleware that
// parses tokens itself.
func (c *Codec) AccessKeyFunc() jwt.Keyfunc {
	return hmacKey(c.accessSecret)
}

func hmacKey(secret []byte) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}
}

// IssueLicenseToken signs a license with signer: RS256 for RSA keys,
// ES256 for ECDSA keys. License tokens carry no exp claim; the license
// window is expiresAt.
func (c *Codec) IssueLicenseToken(userID string, expiresAt time.Time, signer crypto.Signer) (string, error) {
	method, err := signingMethod(signer)
	if err != nil {
		return "", err
	}
	claims := LicenseClaims{
		UserID:           userID,
		LicenseExpiresAt: expiresAt.UTC().Format(time.RFC3339Nano),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(c.now().UTC()),
		},
	}
	return jwt.NewWithClaims(method, claims).SignedString(signer)
}

func signingMethod(signer crypto.Signer) (jwt.SigningMethod, error) {
	if signer == nil {
		return nil, ErrUnsupportedKey
	}
	switch signer.Public().(type) {
	case *rsa.PublicKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PublicKey:
		return jwt.SigningMethodES256, nil
	default:
		return nil, ErrUnsupportedKey
	}
}
