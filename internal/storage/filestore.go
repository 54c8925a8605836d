package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kdtcrypt/kdt"
)

const (
	publicKeysHeader = "# KDT public keys\n"
	ownedKeysHeader  = "# KDT owned keys. This file contains private keys: do not share it.\n"
)

type publicKeysDoc struct {
	Keys []publicKeyEntry `yaml:"keys"`
}

type publicKeyEntry struct {
	ID    string `yaml:"id"`
	Owner string `yaml:"owner"`
	Block string `yaml:"block"`
}

type ownedKeysDoc struct {
	Keys []ownedKeyEntry `yaml:"keys"`
}

type ownedKeyEntry struct {
	ID       string `yaml:"id"`
	PublicID string `yaml:"public_id"`
	Owner    string `yaml:"owner"`
	Public   string `yaml:"public"`
	Private  string `yaml:"private"`
}

// FileStore keeps the key databases as YAML files in one directory. The
// owned-key file is sealed when a passphrase is configured.
type FileStore struct {
	dir string
	cfg storeConfig
}

var _ kdt.Persister = (*FileStore)(nil)

// NewFileStore returns a FileStore rooted at dir. Nothing is read until the
// databases are loaded.
func NewFileStore(dir string, opts ...Option) *FileStore {
	return &FileStore{dir: dir, cfg: newStoreConfig(opts)}
}

// Dir returns the directory holding the databases.
func (s *FileStore) Dir() string { return s.dir }

// PublicKeysPath returns the path of the public key database.
func (s *FileStore) PublicKeysPath() string {
	return filepath.Join(s.dir, s.cfg.publicKeysFile)
}

// OwnedKeysPath returns the path of the owned key database.
func (s *FileStore) OwnedKeysPath() string {
	return filepath.Join(s.dir, s.cfg.ownedKeysFile)
}

// LoadPublicKeys implements kdt.Persister. A missing file is an empty database.
func (s *FileStore) LoadPublicKeys() ([]*kdt.PublicKey, error) {
	path := s.PublicKeysPath()
	data, err := readOptional(path)
	if err != nil {
		return nil, loadError(path, err)
	}

	var doc publicKeysDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, loadError(path, fmt.Errorf("%w: %v", ErrCorrupt, err))
	}

	keys := make([]*kdt.PublicKey, 0, len(doc.Keys))
	for _, e := range doc.Keys {
		pk, err := decodePublic(e.ID, e.Block)
		if err != nil {
			return nil, loadError(path, err)
		}
		keys = append(keys, pk)
	}
	return keys, nil
}

// LoadOwnedKeys implements kdt.Persister. A missing file is an empty database.
func (s *FileStore) LoadOwnedKeys() ([]*kdt.Keyset, error) {
	path := s.OwnedKeysPath()
	data, err := readOptional(path)
	if err != nil {
		return nil, loadError(path, err)
	}

	if isSealed(data) {
		passphrase, err := s.cfg.passphrase.Passphrase()
		if err != nil {
			return nil, loadError(path, err)
		}
		if passphrase == "" {
			return nil, loadError(path, ErrPassphraseRequired)
		}
		if data, err = unseal(passphrase, data); err != nil {
			return nil, loadError(path, err)
		}
	}

	var doc ownedKeysDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, loadError(path, fmt.Errorf("%w: %v", ErrCorrupt, err))
	}

	keysets := make([]*kdt.Keyset, 0, len(doc.Keys))
	for _, e := range doc.Keys {
		ks, err := decodeOwned(e.ID, e.PublicID, e.Public, e.Private)
		if err != nil {
			return nil, loadError(path, err)
		}
		keysets = append(keysets, ks)
	}
	return keysets, nil
}

// SavePublicKeys implements kdt.Persister.
func (s *FileStore) SavePublicKeys(keys []*kdt.PublicKey) error {
	path := s.PublicKeysPath()

	doc := publicKeysDoc{Keys: make([]publicKeyEntry, 0, len(keys))}
	for _, pk := range keys {
		doc.Keys = append(doc.Keys, publicKeyEntry{
			ID:    pk.ID(),
			Owner: pk.Owner(),
			Block: pk.String(),
		})
	}

	data, err := marshalWithHeader(publicKeysHeader, doc)
	if err != nil {
		return saveError(path, err)
	}
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return saveError(path, err)
	}
	return nil
}

// SaveOwnedKeys implements kdt.Persister.
func (s *FileStore) SaveOwnedKeys(keysets []*kdt.Keyset) error {
	path := s.OwnedKeysPath()

	doc := ownedKeysDoc{Keys: make([]ownedKeyEntry, 0, len(keysets))}
	for _, ks := range keysets {
		doc.Keys = append(doc.Keys, ownedKeyEntry{
			ID:       ks.ID(),
			PublicID: ks.Public.ID(),
			Owner:    ks.Owner(),
			Public:   ks.Public.String(),
			Private:  ks.Private.String(),
		})
	}

	data, err := marshalWithHeader(ownedKeysHeader, doc)
	if err != nil {
		return saveError(path, err)
	}

	passphrase, err := s.cfg.passphrase.Passphrase()
	if err != nil {
		return saveError(path, err)
	}
	if passphrase != "" {
		if data, err = seal(passphrase, data); err != nil {
			return saveError(path, err)
		}
	}

	if err := writeFileAtomic(path, data, 0o600); err != nil {
		return saveError(path, err)
	}
	return nil
}

// OwnedKeysSealed reports whether the owned key database on disk is sealed.
func (s *FileStore) OwnedKeysSealed() (bool, error) {
	data, err := readOptional(s.OwnedKeysPath())
	if err != nil {
		return false, err
	}
	return isSealed(data), nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func marshalWithHeader(header string, v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func loadError(path string, err error) error {
	return &kdt.StoreError{Op: "load", Path: path, Err: err}
}

func saveError(path string, err error) error {
	return &kdt.StoreError{Op: "save", Path: path, Err: err}
}
