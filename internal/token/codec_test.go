package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec() *Codec {
	return NewCodec("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
}

var payload = Payload{UserID: "u-1", Email: "user@example.com", SessionID: "s-1"}

func TestAccessTokenRoundTrip(t *testing.T) {
	c := newTestCodec()

	tok, err := c.IssueAccessToken(payload)
	require.NoError(t, err)

	claims, err := c.VerifyAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "s-1", claims.SessionID)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestAccessAndRefreshAreNotInterchangeable(t *testing.T) {
	c := newTestCodec()
	access, refresh, err := c.IssuePair(payload)
	require.NoError(t, err)

	_, err = c.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := c.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "s-1", claims.SessionID)
}

func TestEveryTokenHasFreshJTI(t *testing.T) {
	c := newTestCodec()
	a, err := c.IssueAccessToken(payload)
	require.NoError(t, err)
	b, err := c.IssueAccessToken(payload)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	ca, _ := c.VerifyAccessToken(a)
	cb, _ := c.VerifyAccessToken(b)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	issuer := newTestCodec().WithClock(func() time.Time { return past })

	tok, err := issuer.IssueAccessToken(payload)
	require.NoError(t, err)

	_, err = newTestCodec().VerifyAccessToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWrongAlgorithmIsRejected(t *testing.T) {
	claims := Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = newTestCodec().VerifyAccessToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newTestCodec().VerifyAccessToken(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTamperedTokenIsRejected(t *testing.T) {
	c := newTestCodec()
	tok, err := c.IssueAccessToken(payload)
	require.NoError(t, err)

	_, err = c.VerifyAccessToken(tok + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.VerifyAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func verifyLicense(t *testing.T, tok string, pub crypto.PublicKey) *LicenseClaims {
	t.Helper()
	parsed, err := jwt.ParseWithClaims(tok, &LicenseClaims{}, func(*jwt.Token) (interface{}, error) {
		return pub, nil
	})
	require.NoError(t, err)
	return parsed.Claims.(*LicenseClaims)
}

func TestLicenseTokenRS256(t *testing.T) {
	signer := TestSigner()
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	tok, err := newTestCodec().IssueLicenseToken("u-1", expires, signer)
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(tok, &LicenseClaims{})
	require.NoError(t, err)
	assert.Equal(t, "RS256", parsed.Method.Alg())

	claims := verifyLicense(t, tok, signer.Public())
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "2030-01-02T03:04:05Z", claims.LicenseExpiresAt)
	assert.NotEmpty(t, claims.ID)
	assert.NotNil(t, claims.IssuedAt)
}

func TestLicenseTokenES256(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tok, err := newTestCodec().IssueLicenseToken("u-2", time.Now(), key)
	require.NoError(t, err)

	claims := verifyLicense(t, tok, key.Public())
	assert.Equal(t, "u-2", claims.UserID)
}

func TestLicenseTokenWithoutSigner(t *testing.T) {
	_, err := newTestCodec().IssueLicenseToken("u-1", time.Now(), nil)
	assert.ErrorIs(t, err, ErrUnsupportedKey)
}

func TestParsePrivateKeyFormats(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	pemText := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))

	inline, err := ParsePrivateKey(pemText)
	require.NoError(t, err)
	assert.IsType(t, &ecdsa.PrivateKey{}, inline)

	_, err = ParsePrivateKey(base64.StdEncoding.EncodeToString([]byte(pemText)))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "license.pem")
	require.NoError(t, os.WriteFile(path, []byte(pemText), 0o600))
	_, err = ParsePrivateKey(path)
	require.NoError(t, err)

	_, err = ParsePrivateKey("")
	assert.ErrorIs(t, err, ErrInvalidKey)

	pub, err := PublicKeyPEM(inline)
	require.NoError(t, err)
	assert.Contains(t, string(pub), "BEGIN PUBLIC KEY")
}

func TestDigest(t *testing.T) {
	d := Digest("refresh-token")
	assert.Len(t, d, 64)
	assert.True(t, DigestEqual("refresh-token", d))
	assert.False(t, DigestEqual("other-token", d))
	assert.False(t, DigestEqual("refresh-token", ""))
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(0)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{30}$`), code)

	other, err := GenerateCode(DefaultCodeBytes)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)

	long, err := GenerateCode(32)
	require.NoError(t, err)
	assert.Len(t, long, 64)
}
