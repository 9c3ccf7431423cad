package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned when a password does not match its hash.
var ErrPasswordMismatch = errors.New("password does not match")

// argonParams is the decoded form of a PHC argon2id string.
type argonParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// HashPassword generates a PHC-format Argon2id hash string including salt and parameters.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password+GetPepper()), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword compares a plaintext password against a stored hash. Argon2id
// PHC strings are checked with the pepper; bcrypt hashes imported from the
// legacy user table are checked as-is.
func VerifyPassword(password, encodedHash string) error {
	if isBcrypt(encodedHash) {
		if err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)); err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return ErrPasswordMismatch
			}
			return fmt.Errorf("invalid hash format: %w", err)
		}
		return nil
	}

	p, err := parseArgon2id(encodedHash)
	if err != nil {
		return err
	}

	computed := argon2.IDKey(
		[]byte(password+GetPepper()),
		p.salt,
		p.iterations,
		p.memory,
		p.parallelism,
		uint32(len(p.hash)), // #nosec G115 - hash length comes from our own encoder
	)

	if subtle.ConstantTimeCompare(computed, p.hash) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}

// NeedsRehash reports whether a stored hash should be replaced after a
// successful login: bcrypt hashes and argon2id hashes with stale parameters.
func NeedsRehash(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	p, err := parseArgon2id(encodedHash)
	if err != nil {
		return true
	}
	return p.memory != memory || p.iterations != iterations || p.parallelism != parallelism ||
		len(p.hash) != keyLength
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}

// parseArgon2id splits $argon2id$v=19$m=X,t=Y,p=Z$salt$hash.
func parseArgon2id(encodedHash string) (argonParams, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return argonParams{}, errors.New("invalid hash format: expected 6 parts")
	}
	if parts[1] != "argon2id" {
		return argonParams{}, errors.New("invalid hash format: not argon2id")
	}
	if parts[2] != "v=19" {
		return argonParams{}, errors.New("invalid hash format: wrong version")
	}

	var p argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return argonParams{}, fmt.Errorf("invalid hash format: failed to parse parameters: %w", err)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return argonParams{}, fmt.Errorf("invalid hash format: failed to decode salt: %w", err)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return argonParams{}, fmt.Errorf("invalid hash format: failed to decode hash: %w", err)
	}
	return p, nil
}

// GeneratePassword returns a random 12 character alphanumeric password.
func GeneratePassword() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 12
	password := make([]byte, length)
	for i := range password {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random password: %w", err)
		}
		password[i] = charset[n.Int64()]
	}
	return string(password), nil
}
