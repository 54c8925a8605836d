package crypto

import "fmt"

// Envelope is the output of one hybrid encryption: the ML-KEM-768
// encapsulated secret, the AES-256-GCM ciphertext (with tag) and its nonce.
type Envelope struct {
	EncapsulatedSecret []byte
	Ciphertext         []byte
	Nonce              []byte
}

// Encrypt encrypts plaintext for the holder of recipientPublicKey.
//
// The encryption process:
//  1. ML-KEM-768 encapsulation against the recipient public key
//  2. The 32-byte shared secret is used directly as the AES-256 key
//  3. AES-256-GCM with a fresh random 12-byte nonce and no associated data
//
// A new nonce is drawn on every call. Nonce reuse under the same key breaks
// AES-GCM completely.
func Encrypt(plaintext, recipientPublicKey []byte) (*Envelope, error) {
	encapsulated, sharedSecret, err := Encapsulate(recipientPublicKey)
	if err != nil {
		return nil, err
	}
	defer Zeroize(sharedSecret)

	nonce := make([]byte, AESNonceSize)
	if err := readRandom(nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", ErrEncryption, err)
	}

	ciphertext, err := sealAESGCM(sharedSecret, nonce, nil, plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	return &Envelope{
		EncapsulatedSecret: encapsulated,
		Ciphertext:         ciphertext,
		Nonce:              nonce,
	}, nil
}

// Decrypt recovers the plaintext of env with recipientSecretKey.
//
// Returns ErrDecapsulation when the secret key or encapsulated secret is
// malformed and ErrAuthentication when the ciphertext does not authenticate,
// which includes decrypting with somebody else's secret key.
func Decrypt(env *Envelope, recipientSecretKey []byte) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrDecapsulation)
	}

	kp := &Keypair{SecretKey: recipientSecretKey}
	sharedSecret, err := kp.Decapsulate(env.EncapsulatedSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecapsulation, err)
	}
	defer Zeroize(sharedSecret)

	if len(env.Nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: %w: got %d, want %d", ErrAuthentication, ErrInvalidNonceSize, len(env.Nonce), AESNonceSize)
	}

	plaintext, err := openAESGCM(sharedSecret, env.Nonce, nil, env.Ciphertext)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
