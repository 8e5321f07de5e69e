package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/vrceventbot/vrceventbot/internal/errors"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "vrceventbot credential vault v1"

// Cipher seals single fields with AES-256-GCM. Output is nonce || ciphertext || tag
// so every field can be opened on its own.
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewCipher derives the AES key from secret with HKDF-SHA256.
func NewCipher(secret []byte) (*Cipher, error) {
	if len(secret) == 0 {
		return nil, &errors.ErrCrypto{Err: fmt.Errorf("empty secret")}
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, &errors.ErrCrypto{Err: fmt.Errorf("derive key: %w", err)}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &errors.ErrCrypto{Err: fmt.Errorf("aes.NewCipher: %w", err)}
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &errors.ErrCrypto{Err: fmt.Errorf("cipher.NewGCM: %w", err)}
	}
	return &Cipher{aead: aead, rand: rand.Reader}, nil
}

// Seal encrypts plaintext. The additional data binds the ciphertext to one
// user and field so sealed values cannot be swapped between records.
func (c *Cipher) Seal(plaintext []byte, userID, field string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, &errors.ErrCrypto{Field: field, Err: fmt.Errorf("rand nonce: %w", err)}
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData(userID, field)), nil
}

// Open reverses Seal. A wrong key, a flipped byte or a mismatched user or
// field all fail the same way.
func (c *Cipher) Open(sealed []byte, userID, field string) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n+c.aead.Overhead() {
		return nil, &errors.ErrCrypto{Field: field, Err: fmt.Errorf("ciphertext too short")}
	}
	plaintext, err := c.aead.Open(nil, sealed[:n], sealed[n:], additionalData(userID, field))
	if err != nil {
		return nil, &errors.ErrCrypto{Field: field, Err: err}
	}
	return plaintext, nil
}

func additionalData(userID, field string) []byte {
	return []byte(userID + "\x00" + field)
}
