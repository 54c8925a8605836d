package storage

import (
	"fmt"

	"github.com/kdtcrypt/kdt"
)

// decodePublic parses a stored public key and checks it against its
// recorded ID.
func decodePublic(id, block string) (*kdt.PublicKey, error) {
	pk, err := kdt.ParsePublicKey(block)
	if err != nil {
		return nil, fmt.Errorf("%w: public key %s: %w", ErrCorrupt, id, err)
	}
	if pk.ID() != id {
		return nil, fmt.Errorf("%w: public key recorded as %s hashes to %s", ErrCorrupt, id, pk.ID())
	}
	return pk, nil
}

// decodeOwned parses a stored keyset and checks both halves against their
// recorded IDs.
func decodeOwned(id, publicID, publicBlock, privateBlock string) (*kdt.Keyset, error) {
	pub, err := decodePublic(publicID, publicBlock)
	if err != nil {
		return nil, err
	}
	priv, err := kdt.ParsePrivateKey(privateBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: private key %s: %w", ErrCorrupt, id, err)
	}
	if priv.ID() != id {
		return nil, fmt.Errorf("%w: private key recorded as %s hashes to %s", ErrCorrupt, id, priv.ID())
	}
	ks, err := kdt.NewKeyset(pub, priv)
	if err != nil {
		return nil, fmt.Errorf("%w: keyset %s: %w", ErrCorrupt, id, err)
	}
	return ks, nil
}
