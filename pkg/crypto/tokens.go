// Package crypto seals platform OAuth tokens before they are written to the database.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned when the encryption key is empty.
	ErrInvalidKey = errors.New("invalid encryption key: must not be empty")
	// ErrDecryptionFailed is returned for tampered ciphertext, a wrong key, or a token moved to another row.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// TokenCipher is AES-256-GCM keyed from CREDENTIALS_KEY.
// Every ciphertext is bound to a context string (the owning connection), so a sealed token
// copied onto another business's row fails to open.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher accepts a base64 32-byte key (openssl rand -base64 32) or any passphrase,
// which is hashed to 32 bytes with SHA-256.
func NewTokenCipher(keyInput string) (*TokenCipher, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	key, err := base64.StdEncoding.DecodeString(keyInput)
	if err != nil || len(key) != 32 {
		sum := sha256.Sum256([]byte(keyInput))
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Seal encrypts token bound to boundTo and returns base64(nonce || ciphertext || tag).
// An empty token stays empty so optional refresh tokens round-trip as "".
func (c *TokenCipher) Seal(token, boundTo string) (string, error) {
	if token == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(token), []byte(boundTo))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. boundTo must match the value used when sealing.
func (c *TokenCipher) Open(sealed, boundTo string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}

	n := c.aead.NonceSize()
	if len(raw) < n+c.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	plain, err := c.aead.Open(nil, raw[:n], raw[n:], []byte(boundTo))
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return string(plain), nil
}

// ConnectionBinding is the context string for a platform connection's tokens.
func ConnectionBinding(businessID, platform string) string {
	return businessID + "/" + platform
}
