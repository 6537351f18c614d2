package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// DefaultCodeBytes yields 30 hex characters.
const DefaultCodeBytes = 15

// Digest returns the hex SHA-256 of a token. Only digests are persisted.
func Digest(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// DigestEqual compares the digest of token with stored in constant time.
func DigestEqual(token, stored string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Digest(token)), []byte(stored)) == 1
}

// GenerateCode returns n random bytes, hex encoded.
func GenerateCode(n int) (string, error) {
	if n <= 0 {
		n = DefaultCodeBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
