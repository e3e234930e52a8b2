// Package crypto holds the password hashing and random token helpers shared
// by admin authentication, sessions, CSRF and member verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinTokenBytes is the smallest random payload accepted for security tokens (128 bits).
const MinTokenBytes = 16

// ErrTokenTooShort is returned when a caller requests fewer than MinTokenBytes.
var ErrTokenTooShort = errors.New("crypto: token must carry at least 128 bits")

// HashPassword returns a bcrypt hash of password at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("crypto: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. Malformed hashes never match.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken returns n random bytes as unpadded URL-safe base64.
func GenerateToken(n int) (string, error) {
	raw, err := randomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// GenerateHexToken returns n random bytes encoded as lowercase hex.
func GenerateHexToken(n int) (string, error) {
	raw, err := randomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func randomBytes(n int) ([]byte, error) {
	if n < MinTokenBytes {
		return nil, ErrTokenTooShort
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("crypto: read random: %w", err)
	}
	return raw, nil
}

// ConstantTimeEqual compares two secrets. Empty values never match.
func ConstantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
