package kdt

import "slices"

// Persister loads and saves the two key databases.
type Persister interface {
	LoadPublicKeys() ([]*PublicKey, error)
	LoadOwnedKeys() ([]*Keyset, error)
	SavePublicKeys([]*PublicKey) error
	SaveOwnedKeys([]*Keyset) error
}

// Load builds a Store from the databases of p.
func Load(p Persister) (*Store, error) {
	pubs, err := p.LoadPublicKeys()
	if err != nil {
		return nil, err
	}
	owned, err := p.LoadOwnedKeys()
	if err != nil {
		return nil, err
	}
	s, err := NewStore(pubs, owned)
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}
	return s, nil
}

// Save writes both collections of s to p. Owned keys go first; when they
// cannot be written the public key database is left untouched.
func (s *Store) Save(p Persister) error {
	if err := p.SaveOwnedKeys(s.keysets); err != nil {
		return err
	}
	return p.SavePublicKeys(s.publicKeys)
}

// MemoryPersister keeps the databases in memory.
type MemoryPersister struct {
	Public []*PublicKey
	Owned  []*Keyset
}

// LoadPublicKeys implements Persister.
func (m *MemoryPersister) LoadPublicKeys() ([]*PublicKey, error) {
	return slices.Clone(m.Public), nil
}

// LoadOwnedKeys implements Persister.
func (m *MemoryPersister) LoadOwnedKeys() ([]*Keyset, error) {
	return slices.Clone(m.Owned), nil
}

// SavePublicKeys implements Persister.
func (m *MemoryPersister) SavePublicKeys(keys []*PublicKey) error {
	m.Public = slices.Clone(keys)
	return nil
}

// SaveOwnedKeys implements Persister.
func (m *MemoryPersister) SaveOwnedKeys(keysets []*Keyset) error {
	m.Owned = slices.Clone(keysets)
	return nil
}
