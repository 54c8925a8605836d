package kdt

import (
	"fmt"
	"slices"
)

// Store holds the public keys of other people and the keysets owned by the
// user. IDs are unique within each collection. A Store is not safe for
// concurrent use.
type Store struct {
	publicKeys []*PublicKey
	keysets    []*Keyset
}

// NewStore builds a store from loaded collections, rejecting duplicate IDs.
func NewStore(publicKeys []*PublicKey, keysets []*Keyset) (*Store, error) {
	s := &Store{}
	for _, pk := range publicKeys {
		if _, err := s.InsertPublic(pk); err != nil {
			return nil, err
		}
	}
	for _, ks := range keysets {
		if _, err := s.InsertKeyset(ks); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// PublicKeys returns the stored public keys in insertion order.
func (s *Store) PublicKeys() []*PublicKey {
	return slices.Clone(s.publicKeys)
}

// Keysets returns the owned keysets in insertion order.
func (s *Store) Keysets() []*Keyset {
	return slices.Clone(s.keysets)
}

// LookupPublic returns the public key with the given ID.
func (s *Store) LookupPublic(id string) (*PublicKey, error) {
	id = normalizeID(id)
	var found *PublicKey
	matches := 0
	for _, pk := range s.publicKeys {
		if pk.ID() == id {
			found = pk
			matches++
		}
	}
	if matches != 1 {
		return nil, &KeyError{ID: id, Err: ErrUnknownKeyID}
	}
	return found, nil
}

// LookupKeyset returns the owned keyset with the given private key ID.
func (s *Store) LookupKeyset(id string) (*Keyset, error) {
	id = normalizeID(id)
	var found *Keyset
	matches := 0
	for _, ks := range s.keysets {
		if ks.ID() == id {
			found = ks
			matches++
		}
	}
	if matches != 1 {
		return nil, &KeyError{ID: id, Err: ErrUnknownKeyID}
	}
	return found, nil
}

// resolvePublic finds a public key among stored keys and the public halves
// of owned keysets.
func (s *Store) resolvePublic(id string) (*PublicKey, error) {
	pk, err := s.LookupPublic(id)
	if err == nil {
		return pk, nil
	}
	id = normalizeID(id)
	for _, ks := range s.keysets {
		if ks.Public.ID() == id {
			return ks.Public, nil
		}
	}
	return nil, err
}

// InsertPublic adds pk and returns its ID.
func (s *Store) InsertPublic(pk *PublicKey) (string, error) {
	if pk == nil {
		return "", ErrNilArgument
	}
	if _, err := s.LookupPublic(pk.ID()); err == nil {
		return "", &KeyError{ID: pk.ID(), Err: ErrDuplicateKey}
	}
	s.publicKeys = append(s.publicKeys, pk)
	return pk.ID(), nil
}

// ImportPublic parses a PUBKEY BLOCK envelope and inserts it.
func (s *Store) ImportPublic(text string) (string, error) {
	pk, err := ParsePublicKey(text)
	if err != nil {
		return "", err
	}
	return s.InsertPublic(pk)
}

// RemovePublic deletes the public key with the given ID. Removing an absent
// key is a no-op.
func (s *Store) RemovePublic(id string) {
	id = normalizeID(id)
	s.publicKeys = slices.DeleteFunc(s.publicKeys, func(pk *PublicKey) bool {
		return pk.ID() == id
	})
}

// InsertKeyset adds ks and returns its ID.
func (s *Store) InsertKeyset(ks *Keyset) (string, error) {
	if ks == nil || ks.Public == nil || ks.Private == nil {
		return "", ErrNilArgument
	}
	if _, err := s.LookupKeyset(ks.ID()); err == nil {
		return "", &KeyError{ID: ks.ID(), Err: ErrDuplicateKey}
	}
	s.keysets = append(s.keysets, ks)
	return ks.ID(), nil
}

// ImportKeyset parses a keyset backup and inserts it.
func (s *Store) ImportKeyset(text string) (string, error) {
	ks, err := ParseKeyset(text)
	if err != nil {
		return "", err
	}
	return s.InsertKeyset(ks)
}

// RemoveKeyset deletes the owned keyset with the given ID. Removing an
// absent keyset is a no-op.
func (s *Store) RemoveKeyset(id string) {
	id = normalizeID(id)
	s.keysets = slices.DeleteFunc(s.keysets, func(ks *Keyset) bool {
		return ks.ID() == id
	})
}

// GenerateKeyset creates a keyset for owner, stores it and returns its ID.
// An empty owner is recorded as DefaultOwner.
func (s *Store) GenerateKeyset(owner string) (string, error) {
	ks, err := GenerateKeyset(owner)
	if err != nil {
		return "", err
	}
	return s.InsertKeyset(ks)
}

// ExportPublic returns the PUBKEY BLOCK of an owned keyset, ready to share.
func (s *Store) ExportPublic(keysetID string) (string, error) {
	ks, err := s.LookupKeyset(keysetID)
	if err != nil {
		return "", err
	}
	return ks.Public.String(), nil
}

// ExportKeyset returns both envelopes of an owned keyset for backup.
func (s *Store) ExportKeyset(keysetID string) (string, error) {
	ks, err := s.LookupKeyset(keysetID)
	if err != nil {
		return "", err
	}
	return ks.String(), nil
}

// Encrypt encrypts text for the public key with the given ID and returns the
// MESSAGE envelope.
func (s *Store) Encrypt(publicID, text string) (string, error) {
	pk, err := s.resolvePublic(publicID)
	if err != nil {
		return "", err
	}
	msg, err := Encrypt(text, pk)
	if err != nil {
		return "", err
	}
	return msg.String(), nil
}

// Decrypt decrypts a MESSAGE envelope with the owned keyset keysetID.
func (s *Store) Decrypt(keysetID, armored string) (string, error) {
	ks, err := s.LookupKeyset(keysetID)
	if err != nil {
		return "", err
	}
	msg, err := ParseEncryptedMessage(armored)
	if err != nil {
		return "", err
	}
	text, err := Decrypt(msg, ks.Private)
	if err != nil {
		return "", &KeyError{ID: ks.ID(), Err: err}
	}
	return text, nil
}

// Sign signs text with the owned keyset keysetID and returns the signed
// message envelope.
func (s *Store) Sign(keysetID, text string) (string, error) {
	ks, err := s.LookupKeyset(keysetID)
	if err != nil {
		return "", err
	}
	sm, err := Sign(text, ks)
	if err != nil {
		return "", fmt.Errorf("keyset %s: %w", ks.ID(), err)
	}
	return sm.String(), nil
}

// Verify checks a signed message envelope against the public key publicID,
// which may also be the public half of an owned keyset. A bad signature is
// reported as false with a nil error.
func (s *Store) Verify(publicID, armored string) (bool, error) {
	pk, err := s.resolvePublic(publicID)
	if err != nil {
		return false, err
	}
	sm, err := ParseSignedMessage(armored)
	if err != nil {
		return false, err
	}
	return Verify(sm, pk), nil
}
