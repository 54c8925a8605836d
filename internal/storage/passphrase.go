package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const (
	// DefaultPassphraseEnv is read by EnvPassphrase when no variable is named.
	DefaultPassphraseEnv = "KDT_PASSPHRASE"

	// KeyringService is the OS keyring service KDT stores its passphrase under.
	KeyringService = "kdt"
	// KeyringItem is the keyring entry holding the owned-key passphrase.
	KeyringItem = "owned-keys"
)

// PassphraseSource supplies the passphrase protecting the owned-key
// database. An empty passphrase means the database is kept unsealed.
type PassphraseSource interface {
	Passphrase() (string, error)
}

// NoPassphrase keeps the owned-key database unsealed.
type NoPassphrase struct{}

// Passphrase implements PassphraseSource.
func (NoPassphrase) Passphrase() (string, error) { return "", nil }

// StaticPassphrase is a fixed passphrase, typically read from configuration.
type StaticPassphrase string

// Passphrase implements PassphraseSource.
func (s StaticPassphrase) Passphrase() (string, error) { return string(s), nil }

// EnvPassphrase reads the passphrase from an environment variable.
type EnvPassphrase struct {
	// Var is the variable name; DefaultPassphraseEnv when empty.
	Var string
}

// Passphrase implements PassphraseSource.
func (e EnvPassphrase) Passphrase() (string, error) {
	name := e.Var
	if name == "" {
		name = DefaultPassphraseEnv
	}
	return os.Getenv(name), nil
}

// KeyringPassphrase reads the passphrase from the OS keyring.
type KeyringPassphrase struct {
	ring keyring.Keyring
	item string
}

// OpenKeyring opens the OS keyring under KeyringService.
func OpenKeyring() (*KeyringPassphrase, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: KeyringService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return NewKeyringPassphrase(ring), nil
}

// NewKeyringPassphrase uses an already opened keyring.
func NewKeyringPassphrase(ring keyring.Keyring) *KeyringPassphrase {
	return &KeyringPassphrase{ring: ring, item: KeyringItem}
}

// Passphrase implements PassphraseSource. A missing entry yields "".
func (k *KeyringPassphrase) Passphrase() (string, error) {
	item, err := k.ring.Get(k.item)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get passphrase from keyring: %w", err)
	}
	return string(item.Data), nil
}

// SetPassphrase stores passphrase in the keyring.
func (k *KeyringPassphrase) SetPassphrase(passphrase string) error {
	err := k.ring.Set(keyring.Item{
		Key:         k.item,
		Data:        []byte(passphrase),
		Label:       "KDT owned keys",
		Description: "passphrase sealing the KDT private key database",
	})
	if err != nil {
		return fmt.Errorf("failed to store passphrase in keyring: %w", err)
	}
	return nil
}
