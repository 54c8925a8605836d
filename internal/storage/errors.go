package storage

import "errors"

var (
	// ErrCorrupt is returned when a stored key does not match its recorded ID
	// or the database cannot be decoded.
	ErrCorrupt = errors.New("key database is corrupt")

	// ErrPassphraseRequired is returned when the owned-key database is sealed
	// and no passphrase is available.
	ErrPassphraseRequired = errors.New("key database is sealed and no passphrase is configured")

	// ErrSealAuth is returned when a sealed database cannot be opened with
	// the configured passphrase.
	ErrSealAuth = errors.New("wrong passphrase or tampered key database")

	// ErrLocked is returned when another process holds the databases.
	ErrLocked = errors.New("key databases are in use by another process")
)
