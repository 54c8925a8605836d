package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// Sign produces an ML-DSA-65 signature over message. publicKey must belong
// to secretKey, otherwise ErrKeyMismatch is returned.
func Sign(message, secretKey, publicKey []byte) ([]byte, error) {
	kp, err := NewSigningKeypairFromBytes(secretKey, publicKey)
	if err != nil {
		return nil, err
	}
	return kp.Sign(message)
}

// Sign signs message with the keypair's secret key using the hedged
// (randomized) FIPS 204 mode and an empty context string.
func (k *SigningKeypair) Sign(message []byte) ([]byte, error) {
	sk, err := unpackSigningSecret(k.SecretKey)
	if err != nil {
		return nil, err
	}

	sig := make([]byte, MLDSASignatureSize)
	if err := mldsa65.SignTo(sk, message, nil, true, sig); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// VerifySignature verifies an ML-DSA-65 signature over message.
func VerifySignature(publicKey, message, signature []byte) error {
	pk := &mldsa65.PublicKey{}
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	if len(signature) != MLDSASignatureSize {
		return fmt.Errorf("%w: signature is %d bytes, want %d", ErrSignatureVerificationFailed, len(signature), MLDSASignatureSize)
	}

	if !mldsa65.Verify(pk, message, nil, signature) {
		return ErrSignatureVerificationFailed
	}

	return nil
}

// VerifySignatureSafe verifies the signature without returning an error.
// Returns true if the signature is valid, false otherwise; malformed keys
// and signatures are reported as false.
func VerifySignatureSafe(publicKey, message, signature []byte) bool {
	return VerifySignature(publicKey, message, signature) == nil
}
