package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ErrCiphertextTooShort is returned when sealed data cannot hold a nonce.
var ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")

// SecretBox seals small secrets (TOTP seeds) with AES-256-GCM.
// The output format is: [12-byte nonce][encrypted data][16-byte auth tag]
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox derives a 32-byte key from keyMaterial with SHA-256.
func NewSecretBox(keyMaterial []byte) (*SecretBox, error) {
	if len(keyMaterial) == 0 {
		return nil, errors.New("cryptox: empty key material")
	}
	key := sha256.Sum256(keyMaterial)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &SecretBox{aead: gcm}, nil
}

// LoadSecretBox reads key material from path. When path is empty an
// ephemeral key is generated, so sealed secrets do not survive a restart.
func LoadSecretBox(path string) (*SecretBox, error) {
	if path == "" {
		slog.Warn("no MFA key file configured, using an ephemeral key")
		material := make([]byte, 32)
		if _, err := rand.Read(material); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
		}
		return NewSecretBox(material)
	}

	data, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return NewSecretBox([]byte(strings.TrimSpace(string(data))))
}

// Seal encrypts and authenticates plaintext with a random nonce.
func (b *SecretBox) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func (b *SecretBox) Open(sealed []byte) ([]byte, error) {
	nonceSize := b.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]

	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
