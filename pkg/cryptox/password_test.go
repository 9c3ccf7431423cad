package cryptox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "cryptox")
	if err != nil {
		panic(err)
	}
	SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func TestHashPassword(t *testing.T) {
	for _, password := range []string{"password123", "P@ssw0rd!#$%^&*()", strings.Repeat("a", 100), "", "   spaces   "} {
		hash, err := HashPassword(password)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=19456,t=2,p=1$"))
		require.NoError(t, VerifyPassword(password, hash))
		require.False(t, NeedsRehash(hash))
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	hash1, err := HashPassword("samepassword")
	require.NoError(t, err)
	hash2, err := HashPassword("samepassword")
	require.NoError(t, err)
	require.NotEqual(t, hash1, hash2)
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	hash, err := HashPassword("correct-password")
	require.NoError(t, err)

	for _, wrong := range []string{"wrong-password", "Correct-Password", "correct-password ", "", strings.Repeat("x", 10000)} {
		require.ErrorIs(t, VerifyPassword(wrong, hash), ErrPasswordMismatch)
	}
}

func TestVerifyPassword_InvalidHashFormat(t *testing.T) {
	tests := map[string]string{
		"empty hash":           "",
		"wrong algorithm":      "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		"missing parts":        "$argon2id$v=19$m=19456",
		"malformed parameters": "$argon2id$v=19$invalid$c2FsdA$aGFzaA",
		"invalid base64 salt":  "$argon2id$v=19$m=19456,t=2,p=1$!!!invalid!!!$aGFzaA",
		"wrong version":        "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		"truncated bcrypt":     "$2y$10$short",
	}

	for name, hash := range tests {
		t.Run(name, func(t *testing.T) {
			err := VerifyPassword("test-password", hash)
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrPasswordMismatch)
		})
	}
}

func TestVerifyPassword_LegacyBcrypt(t *testing.T) {
	raw, err := bcrypt.GenerateFromPassword([]byte("legacy-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	// Hashes migrated from the old user table carry the $2y$ prefix.
	legacy := "$2y$" + strings.TrimPrefix(string(raw), "$2a$")

	require.NoError(t, VerifyPassword("legacy-secret", legacy))
	require.ErrorIs(t, VerifyPassword("nope", legacy), ErrPasswordMismatch)
	require.True(t, NeedsRehash(legacy))
}

func TestNeedsRehash_StaleParameters(t *testing.T) {
	require.True(t, NeedsRehash("$argon2id$v=19$m=65536,t=3,p=4$c2FsdHNhbHQ$aGFzaGhhc2g"))
	require.True(t, NeedsRehash("garbage"))
}

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		password, err := GeneratePassword()
		require.NoError(t, err)
		require.Len(t, password, 12)
		require.NotContains(t, seen, password)
		seen[password] = true

		for _, c := range password {
			require.True(t, (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'))
		}
	}
}
