package kdt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kdtcrypt/kdt/internal/armor"
	"github.com/kdtcrypt/kdt/internal/crypto"
)

// DefaultOwner is recorded when a keyset is generated without an owner name.
const DefaultOwner = "No name was provided by the key owner!"

// PublicKey is the shareable half of a keyset: an ML-KEM-768 encryption key,
// an ML-DSA-65 verification key and the owner's name.
//
// A PublicKey is immutable. Its ID is derived from its envelope text when it
// is constructed.
type PublicKey struct {
	encryptionKey []byte
	signingKey    []byte
	owner         string
	text          string
	id            string
}

// NewPublicKey assembles a public key from raw key material.
func NewPublicKey(encryptionKey, signingKey []byte, owner string) (*PublicKey, error) {
	if err := checkSizes(armor.TagPublicKey, encryptionKey, crypto.MLKEMPublicKeySize, signingKey, crypto.MLDSAPublicKeySize); err != nil {
		return nil, err
	}
	k := &PublicKey{
		encryptionKey: clone(encryptionKey),
		signingKey:    clone(signingKey),
		owner:         owner,
	}
	k.text = renderKey(armor.TagPublicKey, k.encryptionKey, k.signingKey, owner)
	k.id = computeID(k.text)
	return k, nil
}

// ParsePublicKey parses a PUBKEY BLOCK envelope.
func ParsePublicKey(text string) (*PublicKey, error) {
	enc, sig, owner, err := parseKey(armor.TagPublicKey, text)
	if err != nil {
		return nil, err
	}
	return NewPublicKey(enc, sig, owner)
}

// ID returns the key's identifier.
func (k *PublicKey) ID() string { return k.id }

// Owner returns the name recorded by the key's owner.
func (k *PublicKey) Owner() string { return k.owner }

// EncryptionKey returns a copy of the ML-KEM-768 public key.
func (k *PublicKey) EncryptionKey() []byte { return clone(k.encryptionKey) }

// SigningKey returns a copy of the ML-DSA-65 public key.
func (k *PublicKey) SigningKey() []byte { return clone(k.signingKey) }

// String returns the canonical envelope.
func (k *PublicKey) String() string { return k.text }

// PrivateKey is the secret half of a keyset. Its envelope must never be
// shared.
type PrivateKey struct {
	encryptionKey []byte
	signingKey    []byte
	owner         string
	text          string
	id            string
}

// NewPrivateKey assembles a private key from raw key material.
func NewPrivateKey(encryptionKey, signingKey []byte, owner string) (*PrivateKey, error) {
	if err := checkSizes(armor.TagPrivateKey, encryptionKey, crypto.MLKEMSecretKeySize, signingKey, crypto.MLDSASecretKeySize); err != nil {
		return nil, err
	}
	k := &PrivateKey{
		encryptionKey: clone(encryptionKey),
		signingKey:    clone(signingKey),
		owner:         owner,
	}
	k.text = renderKey(armor.TagPrivateKey, k.encryptionKey, k.signingKey, owner)
	k.id = computeID(k.text)
	return k, nil
}

// ParsePrivateKey parses a PRIVKEY BLOCK envelope.
func ParsePrivateKey(text string) (*PrivateKey, error) {
	enc, sig, owner, err := parseKey(armor.TagPrivateKey, text)
	if err != nil {
		return nil, err
	}
	return NewPrivateKey(enc, sig, owner)
}

// ID returns the key's identifier.
func (k *PrivateKey) ID() string { return k.id }

// Owner returns the name recorded by the key's owner.
func (k *PrivateKey) Owner() string { return k.owner }

// String returns the canonical envelope.
func (k *PrivateKey) String() string { return k.text }

// Keyset is a public key and the private key generated with it. A keyset is
// identified by its private key ID.
type Keyset struct {
	Public  *PublicKey
	Private *PrivateKey
}

// NewKeyset pairs a public and a private key after checking that both
// key pairs belong together.
func NewKeyset(pub *PublicKey, priv *PrivateKey) (*Keyset, error) {
	if pub == nil || priv == nil {
		return nil, fmt.Errorf("%w: incomplete keyset", ErrKeyMismatch)
	}
	if _, err := crypto.NewKeypairFromBytes(priv.encryptionKey, pub.encryptionKey); err != nil {
		return nil, fmt.Errorf("encryption keys: %w", asMismatch(err))
	}
	if _, err := crypto.NewSigningKeypairFromBytes(priv.signingKey, pub.signingKey); err != nil {
		return nil, fmt.Errorf("signing keys: %w", asMismatch(err))
	}
	return &Keyset{Public: pub, Private: priv}, nil
}

// GenerateKeyset creates a fresh keyset for owner.
func GenerateKeyset(owner string) (*Keyset, error) {
	if owner == "" {
		owner = DefaultOwner
	}

	raw, err := crypto.GenerateKeyset()
	if err != nil {
		return nil, &CryptoError{Op: "generate", Err: err}
	}

	pub, err := NewPublicKey(raw.Encryption.PublicKey, raw.Signing.PublicKey, owner)
	if err != nil {
		return nil, err
	}
	priv, err := NewPrivateKey(raw.Encryption.SecretKey, raw.Signing.SecretKey, owner)
	if err != nil {
		return nil, err
	}
	crypto.Zeroize(raw.Encryption.SecretKey)
	crypto.Zeroize(raw.Signing.SecretKey)

	return &Keyset{Public: pub, Private: priv}, nil
}

// ParseKeyset reads a keyset backup: one PUBKEY BLOCK and one PRIVKEY BLOCK
// in any order, optionally surrounded by other text.
func ParseKeyset(text string) (*Keyset, error) {
	pubText, ok := armor.Find(armor.TagPublicKey, text)
	if !ok {
		return nil, &armor.FormatError{Tag: armor.TagPublicKey, Reason: "no public key block found"}
	}
	privText, ok := armor.Find(armor.TagPrivateKey, text)
	if !ok {
		return nil, &armor.FormatError{Tag: armor.TagPrivateKey, Reason: "no private key block found"}
	}

	pub, err := ParsePublicKey(pubText)
	if err != nil {
		return nil, err
	}
	priv, err := ParsePrivateKey(privText)
	if err != nil {
		return nil, err
	}
	return NewKeyset(pub, priv)
}

// ID returns the keyset's identifier, which is its private key ID.
func (ks *Keyset) ID() string { return ks.Private.ID() }

// Owner returns the keyset owner's name.
func (ks *Keyset) Owner() string { return ks.Public.Owner() }

// String returns both envelopes, public first.
func (ks *Keyset) String() string {
	return ks.Public.String() + "\n" + ks.Private.String()
}

func renderKey(tag armor.Tag, encryptionKey, signingKey []byte, owner string) string {
	return armor.Wrap(tag,
		crypto.EncodeBase64(encryptionKey),
		crypto.EncodeBase64(signingKey),
		crypto.EncodeBase64([]byte(owner)),
	)
}

func parseKey(tag armor.Tag, text string) (encryptionKey, signingKey []byte, owner string, err error) {
	fields, err := armor.Unwrap(tag, text)
	if err != nil {
		return nil, nil, "", err
	}
	decoded, err := decodeFields(tag, fields)
	if err != nil {
		return nil, nil, "", err
	}
	return decoded[0], decoded[1], strings.ToValidUTF8(string(decoded[2]), "\uFFFD"), nil
}

func decodeFields(tag armor.Tag, fields []string) ([][]byte, error) {
	out := make([][]byte, len(fields))
	for i, f := range fields {
		b, err := crypto.DecodeBase64(f)
		if err != nil {
			return nil, fmt.Errorf("%s field %d: %w", tag, i+1, err)
		}
		out[i] = b
	}
	return out, nil
}

func checkSizes(tag armor.Tag, encryptionKey []byte, encSize int, signingKey []byte, sigSize int) error {
	if len(encryptionKey) != encSize {
		return &armor.FormatError{Tag: tag, Reason: fmt.Sprintf("encryption key is %d bytes, want %d", len(encryptionKey), encSize)}
	}
	if len(signingKey) != sigSize {
		return &armor.FormatError{Tag: tag, Reason: fmt.Sprintf("signing key is %d bytes, want %d", len(signingKey), sigSize)}
	}
	return nil
}

// asMismatch reports unusable key material as a mismatch: sizes were
// already validated, so anything else means the halves do not pair up.
func asMismatch(err error) error {
	if errors.Is(err, ErrKeyMismatch) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrKeyMismatch, err)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
