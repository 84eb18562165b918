package security

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_Deterministic(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	first := HashPassword("Admin123", salt)
	second := HashPassword("Admin123", salt)

	assert.Equal(t, first, second, "same password and salt must produce the same digest")
	assert.Len(t, first, 64, "digest should be 32 bytes hex-encoded")
}

func TestHashPassword_SaltChangesDigest(t *testing.T) {
	s1, err := GenerateSalt()
	require.NoError(t, err)
	s2, err := GenerateSalt()
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)

	assert.NotEqual(t, HashPassword("Admin123", s1), HashPassword("Admin123", s2))
}

func TestHashPassword_PasswordChangesDigest(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	assert.NotEqual(t, HashPassword("Admin123", salt), HashPassword("Admin124", salt))
}

func TestVerifyPassword(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)
	digest := HashPassword("SuperSecret9", salt)

	assert.True(t, VerifyPassword("SuperSecret9", salt, digest))
	assert.False(t, VerifyPassword("supersecret9", salt, digest))
	assert.False(t, VerifyPassword("SuperSecret9", salt, digest+"00"))
}

func TestGenerateSalt_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		salt, err := GenerateSalt()
		require.NoError(t, err)
		assert.Len(t, salt, 32)
		assert.False(t, seen[salt], "salts must not repeat")
		seen[salt] = true
	}
}

func TestGenerateVerificationCode_Format(t *testing.T) {
	sixDigits := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 50; i++ {
		code, err := GenerateVerificationCode()
		require.NoError(t, err)
		assert.Regexp(t, sixDigits, code)
	}
}
