package kdt

import (
	"strings"

	"github.com/kdtcrypt/kdt/internal/armor"
	"github.com/kdtcrypt/kdt/internal/crypto"
)

// EncryptedMessage is the output of hybrid encryption: the ML-KEM-768
// encapsulated secret, the AES-256-GCM ciphertext with its tag, and the nonce.
type EncryptedMessage struct {
	EncapsulatedSecret []byte
	Ciphertext         []byte
	Nonce              []byte
}

// Encrypt encrypts text for the holder of the private key matching to.
// Every call uses a fresh shared secret and nonce.
func Encrypt(text string, to *PublicKey) (*EncryptedMessage, error) {
	if to == nil {
		return nil, &CryptoError{Op: "encrypt", Err: ErrNilArgument}
	}
	env, err := crypto.Encrypt([]byte(text), to.encryptionKey)
	if err != nil {
		return nil, &CryptoError{Op: "encrypt", Err: err}
	}
	return &EncryptedMessage{
		EncapsulatedSecret: env.EncapsulatedSecret,
		Ciphertext:         env.Ciphertext,
		Nonce:              env.Nonce,
	}, nil
}

// Decrypt recovers the text of msg. Invalid UTF-8 in the plaintext is
// replaced rather than reported.
//
// A message encrypted for another key fails with ErrAuthentication.
func Decrypt(msg *EncryptedMessage, with *PrivateKey) (string, error) {
	if msg == nil || with == nil {
		return "", &CryptoError{Op: "decrypt", Err: ErrNilArgument}
	}
	env := &crypto.Envelope{
		EncapsulatedSecret: msg.EncapsulatedSecret,
		Ciphertext:         msg.Ciphertext,
		Nonce:              msg.Nonce,
	}
	plaintext, err := crypto.Decrypt(env, with.encryptionKey)
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Err: err}
	}
	return strings.ToValidUTF8(string(plaintext), "\uFFFD"), nil
}

// String returns the MESSAGE envelope.
func (m *EncryptedMessage) String() string {
	return armor.Wrap(armor.TagMessage,
		crypto.EncodeBase64(m.EncapsulatedSecret),
		crypto.EncodeBase64(m.Ciphertext),
		crypto.EncodeBase64(m.Nonce),
	)
}

// ParseEncryptedMessage parses a MESSAGE envelope. Field sizes are checked
// when the message is decrypted.
func ParseEncryptedMessage(text string) (*EncryptedMessage, error) {
	fields, err := armor.Unwrap(armor.TagMessage, text)
	if err != nil {
		return nil, err
	}
	decoded, err := decodeFields(armor.TagMessage, fields)
	if err != nil {
		return nil, err
	}
	return &EncryptedMessage{
		EncapsulatedSecret: decoded[0],
		Ciphertext:         decoded[1],
		Nonce:              decoded[2],
	}, nil
}
