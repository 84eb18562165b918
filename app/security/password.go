package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations follows the current OWASP recommendation for
	// PBKDF2-HMAC-SHA256.
	pbkdf2Iterations = 210_000
	pbkdf2KeyLen     = 32
	saltBytes        = 16
)

// HashPassword derives a hex-encoded PBKDF2-SHA256 digest from the password
// and salt. Deterministic: the same inputs always yield the same digest.
func HashPassword(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return hex.EncodeToString(key)
}

// VerifyPassword recomputes the digest for the candidate password and compares
// it against the stored one in constant time.
func VerifyPassword(password, salt, digest string) bool {
	candidate := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(digest)) == 1
}

// GenerateSalt returns a fresh per-user salt as a hex string.
func GenerateSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateVerificationCode returns a uniformly random 6-digit code, leading
// zeros allowed.
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
