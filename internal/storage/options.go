package storage

const (
	// DefaultPublicKeysFile holds the public keys of other people.
	DefaultPublicKeysFile = "pubkeys.yaml"
	// DefaultOwnedKeysFile holds the user's own keysets, private keys included.
	DefaultOwnedKeysFile = "ownedkeys.yaml"
	// DefaultDatabaseFile is the SQLite database used by SQLiteStore.
	DefaultDatabaseFile = "keys.db"
)

// storeConfig holds configuration shared by the persisters.
type storeConfig struct {
	passphrase     PassphraseSource
	publicKeysFile string
	ownedKeysFile  string
}

// Option configures a persister.
type Option func(*storeConfig)

// WithPassphrase seals private keys with the passphrase supplied by src.
func WithPassphrase(src PassphraseSource) Option {
	return func(c *storeConfig) {
		c.passphrase = src
	}
}

// WithPublicKeysFile overrides the public key database file name.
func WithPublicKeysFile(name string) Option {
	return func(c *storeConfig) {
		c.publicKeysFile = name
	}
}

// WithOwnedKeysFile overrides the owned key database file name.
func WithOwnedKeysFile(name string) Option {
	return func(c *storeConfig) {
		c.ownedKeysFile = name
	}
}

func newStoreConfig(opts []Option) storeConfig {
	cfg := storeConfig{
		passphrase:     NoPassphrase{},
		publicKeysFile: DefaultPublicKeysFile,
		ownedKeysFile:  DefaultOwnedKeysFile,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
