package crypto

import (
	"bytes"
	cryptorand "crypto/rand"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// randReader is the random source used for key generation and nonces.
// It defaults to nil (which uses crypto/rand) but can be overridden for testing.
var randReader io.Reader

func readRandom(b []byte) error {
	r := randReader
	if r == nil {
		r = cryptorand.Reader
	}
	_, err := io.ReadFull(r, b)
	return err
}

// Keypair represents an ML-KEM-768 keypair for key encapsulation.
type Keypair struct {
	// PublicKey is the raw ML-KEM-768 public key bytes.
	PublicKey []byte
	// SecretKey is the raw ML-KEM-768 secret key bytes.
	SecretKey []byte
}

// GenerateKeypair creates a new ML-KEM-768 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(randReader)
	if err != nil {
		return nil, err
	}

	// MarshalBinary never fails for valid keys from GenerateKeyPair
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()

	return &Keypair{
		PublicKey: pubBytes,
		SecretKey: privBytes,
	}, nil
}

// NewKeypairFromBytes creates a keypair from raw bytes and checks that the
// public key is the one embedded in the secret key.
func NewKeypairFromBytes(secretKeyBytes, publicKeyBytes []byte) (*Keypair, error) {
	if len(secretKeyBytes) != MLKEMSecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}
	if len(publicKeyBytes) != MLKEMPublicKeySize {
		return nil, ErrInvalidPublicKeySize
	}

	priv := &mlkem768.PrivateKey{}
	if err := priv.Unpack(secretKeyBytes); err != nil {
		return nil, err
	}

	embedded, err := DerivePublicKeyFromSecret(secretKeyBytes)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(embedded, publicKeyBytes) {
		return nil, fmt.Errorf("%w: ML-KEM-768", ErrKeyMismatch)
	}

	return &Keypair{
		PublicKey: publicKeyBytes,
		SecretKey: secretKeyBytes,
	}, nil
}

// DerivePublicKeyFromSecret extracts the public key from a secret key.
// In ML-KEM-768, the public key is embedded in the secret key.
// Returns an error if the secret key has an invalid size.
func DerivePublicKeyFromSecret(secretKey []byte) ([]byte, error) {
	if len(secretKey) != MLKEMSecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}

	// Public key is embedded at offset 1152 in circl's ML-KEM-768 secret key format
	publicKey := make([]byte, MLKEMPublicKeySize)
	copy(publicKey, secretKey[PublicKeyOffset:PublicKeyOffset+MLKEMPublicKeySize])
	return publicKey, nil
}

// Encapsulate generates a fresh shared secret for publicKey and returns it
// together with its encapsulated form.
func Encapsulate(publicKey []byte) (encapsulated, sharedSecret []byte, err error) {
	if len(publicKey) != MLKEMPublicKeySize {
		return nil, nil, fmt.Errorf("%w: %w: got %d, want %d", ErrEncapsulation, ErrInvalidPublicKeySize, len(publicKey), MLKEMPublicKeySize)
	}

	scheme := mlkem768.Scheme()
	pk, err := scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncapsulation, err)
	}

	encapsulated, sharedSecret, err = scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncapsulation, err)
	}
	return encapsulated, sharedSecret, nil
}

// Decapsulate decapsulates a shared secret from the encapsulated key.
//
// ML-KEM uses implicit rejection: a well-formed but wrong secret key does not
// fail here, it yields an unrelated secret.
func (k *Keypair) Decapsulate(encapsulatedKey []byte) ([]byte, error) {
	if len(encapsulatedKey) != MLKEMCiphertextSize {
		return nil, ErrInvalidCiphertextSize
	}
	if len(k.SecretKey) != MLKEMSecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}

	var privKey mlkem768.PrivateKey
	if err := privKey.Unpack(k.SecretKey); err != nil {
		return nil, err
	}

	sharedSecret := make([]byte, MLKEMSharedKeySize)
	privKey.DecapsulateTo(sharedSecret, encapsulatedKey)

	return sharedSecret, nil
}

// SigningKeypair represents an ML-DSA-65 keypair.
type SigningKeypair struct {
	// PublicKey is the raw ML-DSA-65 public key bytes.
	PublicKey []byte
	// SecretKey is the raw ML-DSA-65 secret key bytes.
	SecretKey []byte
}

// GenerateSigningKeypair creates a new ML-DSA-65 keypair.
func GenerateSigningKeypair() (*SigningKeypair, error) {
	pub, priv, err := mldsa65.GenerateKey(randReader)
	if err != nil {
		return nil, err
	}

	return &SigningKeypair{
		PublicKey: pub.Bytes(),
		SecretKey: priv.Bytes(),
	}, nil
}

// NewSigningKeypairFromBytes restores an ML-DSA-65 keypair and checks that
// the public key belongs to the secret key.
func NewSigningKeypairFromBytes(secretKeyBytes, publicKeyBytes []byte) (*SigningKeypair, error) {
	sk, err := unpackSigningSecret(secretKeyBytes)
	if err != nil {
		return nil, err
	}
	if len(publicKeyBytes) != MLDSAPublicKeySize {
		return nil, ErrInvalidPublicKeySize
	}

	derived, ok := sk.Public().(*mldsa65.PublicKey)
	if !ok || !bytes.Equal(derived.Bytes(), publicKeyBytes) {
		return nil, fmt.Errorf("%w: ML-DSA-65", ErrKeyMismatch)
	}

	return &SigningKeypair{
		PublicKey: publicKeyBytes,
		SecretKey: secretKeyBytes,
	}, nil
}

func unpackSigningSecret(secretKey []byte) (*mldsa65.PrivateKey, error) {
	if len(secretKey) != MLDSASecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}
	sk := &mldsa65.PrivateKey{}
	if err := sk.UnmarshalBinary(secretKey); err != nil {
		return nil, fmt.Errorf("failed to parse secret key: %w", err)
	}
	return sk, nil
}

// Keyset is one encryption keypair and one signing keypair produced by a
// single generation event.
type Keyset struct {
	Encryption *Keypair
	Signing    *SigningKeypair
}

// GenerateKeyset creates a fresh ML-KEM-768 and ML-DSA-65 keypair.
func GenerateKeyset() (*Keyset, error) {
	enc, err := GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate ML-KEM-768 keypair: %w", err)
	}
	sig, err := GenerateSigningKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate ML-DSA-65 keypair: %w", err)
	}
	return &Keyset{Encryption: enc, Signing: sig}, nil
}
