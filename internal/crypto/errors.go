package crypto

import "errors"

var (
	// ErrMalformedEncoding is returned when text is not valid base64 output.
	ErrMalformedEncoding = errors.New("malformed base64 encoding")

	// ErrInvalidSecretKeySize is returned when the secret key size is invalid.
	ErrInvalidSecretKeySize = errors.New("invalid secret key size")

	// ErrInvalidPublicKeySize is returned when the public key size is invalid.
	ErrInvalidPublicKeySize = errors.New("invalid public key size")

	// ErrInvalidCiphertextSize is returned when the ciphertext size is invalid.
	ErrInvalidCiphertextSize = errors.New("invalid ciphertext size")

	// ErrInvalidKeySize is returned when the AES key size is invalid.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrEncapsulation is returned when KEM encapsulation fails, which in
	// practice means the recipient public key is malformed.
	ErrEncapsulation = errors.New("key encapsulation failed")

	// ErrEncryption is returned when AEAD sealing fails.
	ErrEncryption = errors.New("encryption failed")

	// ErrDecapsulation is returned when the secret key or the encapsulated
	// secret cannot be used for decapsulation.
	ErrDecapsulation = errors.New("key decapsulation failed")

	// ErrAuthentication is returned when AEAD tag verification fails. With
	// ML-KEM this is also how a wrong (but well-formed) secret key shows up.
	ErrAuthentication = errors.New("message authentication failed")

	// ErrSignatureVerificationFailed is returned when signature verification fails.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")

	// ErrKeyMismatch is returned when the two halves of a keypair do not
	// belong together.
	ErrKeyMismatch = errors.New("public key does not match secret key")
)
