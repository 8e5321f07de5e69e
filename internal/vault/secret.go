// Package vault keeps VRChat credentials encrypted at rest and turns a stored
// record back into a live session.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/vrceventbot/vrceventbot/internal/errors"
	"github.com/vrceventbot/vrceventbot/internal/store"
)

// SecretSize is the length of the generated master secret in bytes.
const SecretSize = 32

// SecretManager owns the process wide master secret. The secret is created
// once and never replaced; replacing it would strand every sealed record.
type SecretManager struct {
	settings store.SettingsStore
	rand     io.Reader
}

// NewSecretManager reads and writes the secret through settings.
func NewSecretManager(settings store.SettingsStore) *SecretManager {
	return &SecretManager{settings: settings, rand: rand.Reader}
}

// GetOrCreate returns the persisted secret, generating it on first use. Any
// error is an *errors.ErrSecretUnavailable and should stop the process.
func (m *SecretManager) GetOrCreate() ([]byte, error) {
	secret, ok, err := m.load()
	if err != nil {
		return nil, err
	}
	if ok {
		return secret, nil
	}

	fresh := make([]byte, SecretSize)
	if _, err := io.ReadFull(m.rand, fresh); err != nil {
		return nil, &errors.ErrSecretUnavailable{Err: fmt.Errorf("generate: %w", err)}
	}
	if _, err := m.settings.SetIfAbsent(store.SettingVaultSecret, base64.StdEncoding.EncodeToString(fresh)); err != nil {
		return nil, &errors.ErrSecretUnavailable{Err: fmt.Errorf("persist: %w", err)}
	}

	// Read back so that concurrent first starts all agree on the winner.
	secret, ok, err = m.load()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &errors.ErrSecretUnavailable{Err: fmt.Errorf("secret missing after write")}
	}
	return secret, nil
}

// Exists reports whether a secret has been generated.
func (m *SecretManager) Exists() (bool, error) {
	_, ok, err := m.load()
	return ok, err
}

func (m *SecretManager) load() ([]byte, bool, error) {
	encoded, ok, err := m.settings.Lookup(store.SettingVaultSecret)
	if err != nil {
		return nil, false, &errors.ErrSecretUnavailable{Err: fmt.Errorf("read: %w", err)}
	}
	if !ok {
		return nil, false, nil
	}
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(secret) != SecretSize {
		return nil, false, &errors.ErrSecretUnavailable{Err: fmt.Errorf("stored secret is malformed")}
	}
	return secret, true, nil
}

// Fingerprint identifies a secret without revealing it.
func Fingerprint(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:8])
}
