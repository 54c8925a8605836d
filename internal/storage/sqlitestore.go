package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kdtcrypt/kdt"
)

const sqliteSchema = `
create table if not exists public_keys (
	seq integer primary key autoincrement,
	id text not null unique,
	owner text not null,
	block text not null
);
create table if not exists owned_keys (
	seq integer primary key autoincrement,
	id text not null unique,
	public_id text not null,
	owner text not null,
	public_block text not null,
	private_block text not null
);`

// SQLiteStore keeps both key databases in one SQLite file. Private key
// blocks are sealed individually when a passphrase is configured.
type SQLiteStore struct {
	path string
	db   *sql.DB
	cfg  storeConfig
}

var _ kdt.Persister = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, loadError(path, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, loadError(path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, loadError(path, fmt.Errorf("create tables: %w", err))
	}
	if err := os.Chmod(path, 0o600); err != nil {
		db.Close()
		return nil, loadError(path, err)
	}

	return &SQLiteStore{path: path, db: db, cfg: newStoreConfig(opts)}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// LoadPublicKeys implements kdt.Persister.
func (s *SQLiteStore) LoadPublicKeys() ([]*kdt.PublicKey, error) {
	rows, err := s.db.Query(`select id, block from public_keys order by seq`)
	if err != nil {
		return nil, loadError(s.path, err)
	}
	defer rows.Close()

	var keys []*kdt.PublicKey
	for rows.Next() {
		var id, block string
		if err := rows.Scan(&id, &block); err != nil {
			return nil, loadError(s.path, err)
		}
		pk, err := decodePublic(id, block)
		if err != nil {
			return nil, loadError(s.path, err)
		}
		keys = append(keys, pk)
	}
	if err := rows.Err(); err != nil {
		return nil, loadError(s.path, err)
	}
	return keys, nil
}

// LoadOwnedKeys implements kdt.Persister.
func (s *SQLiteStore) LoadOwnedKeys() ([]*kdt.Keyset, error) {
	rows, err := s.db.Query(`select id, public_id, public_block, private_block from owned_keys order by seq`)
	if err != nil {
		return nil, loadError(s.path, err)
	}
	defer rows.Close()

	var passphrase string
	var passphraseRead bool

	var keysets []*kdt.Keyset
	for rows.Next() {
		var id, publicID, publicBlock, privateBlock string
		if err := rows.Scan(&id, &publicID, &publicBlock, &privateBlock); err != nil {
			return nil, loadError(s.path, err)
		}

		if isSealed([]byte(privateBlock)) {
			if !passphraseRead {
				if passphrase, err = s.cfg.passphrase.Passphrase(); err != nil {
					return nil, loadError(s.path, err)
				}
				passphraseRead = true
			}
			if passphrase == "" {
				return nil, loadError(s.path, ErrPassphraseRequired)
			}
			plain, err := unseal(passphrase, []byte(privateBlock))
			if err != nil {
				return nil, loadError(s.path, err)
			}
			privateBlock = string(plain)
		}

		ks, err := decodeOwned(id, publicID, publicBlock, privateBlock)
		if err != nil {
			return nil, loadError(s.path, err)
		}
		keysets = append(keysets, ks)
	}
	if err := rows.Err(); err != nil {
		return nil, loadError(s.path, err)
	}
	return keysets, nil
}

// SavePublicKeys implements kdt.Persister. The table is replaced in one
// transaction.
func (s *SQLiteStore) SavePublicKeys(keys []*kdt.PublicKey) error {
	return s.replace(`delete from public_keys`, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`insert into public_keys (id, owner, block) values (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, pk := range keys {
			if _, err := stmt.Exec(pk.ID(), pk.Owner(), pk.String()); err != nil {
				return fmt.Errorf("insert %s: %w", pk.ID(), err)
			}
		}
		return nil
	})
}

// SaveOwnedKeys implements kdt.Persister. The table is replaced in one
// transaction.
func (s *SQLiteStore) SaveOwnedKeys(keysets []*kdt.Keyset) error {
	passphrase, err := s.cfg.passphrase.Passphrase()
	if err != nil {
		return saveError(s.path, err)
	}

	return s.replace(`delete from owned_keys`, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`insert into owned_keys (id, public_id, owner, public_block, private_block) values (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ks := range keysets {
			private := ks.Private.String()
			if passphrase != "" {
				sealed, err := seal(passphrase, []byte(private))
				if err != nil {
					return err
				}
				private = string(sealed)
			}
			if _, err := stmt.Exec(ks.ID(), ks.Public.ID(), ks.Owner(), ks.Public.String(), private); err != nil {
				return fmt.Errorf("insert %s: %w", ks.ID(), err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) replace(clear string, fill func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return saveError(s.path, err)
	}
	if _, err := tx.Exec(clear); err != nil {
		tx.Rollback()
		return saveError(s.path, err)
	}
	if err := fill(tx); err != nil {
		tx.Rollback()
		return saveError(s.path, err)
	}
	if err := tx.Commit(); err != nil {
		return saveError(s.path, err)
	}
	return nil
}
